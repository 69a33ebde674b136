// Package ws предоставляет серверную и клиентскую стороны нагрузочного стенда
// WebSocket:
//   - Session - серверный автомат соединения: эхо text/binary кадров, ответ pong
//     на ping и контроль живости по heartbeat
//   - ClientConnection - клиентский автомат: отвечает pong на ping сервера и
//     закрывается по команде Disconnect
//   - Conn - FrameChannel поверх gorilla/websocket с очередью исходящих кадров
//
// # Сервер
//
//	server := ws.NewServer(ws.DefaultServerConfig())
//	ln, err := server.Bind("127.0.0.1:8080")
//	if err != nil {
//	    return err // оборачивает ws.ErrBind
//	}
//	go server.Serve(ctx, ln)
//
// # Клиент
//
//	conn, err := ws.Dial(ctx, ws.DefaultClientConfig("ws://127.0.0.1:8080/ws/"))
//	if err != nil {
//	    return err // оборачивает ws.ErrConnectionEstablishment
//	}
//	conn.Disconnect()
//	<-conn.Done()
//
// # Heartbeat
//
// Сессия раз в HeartbeatConfig.Interval (30s) проверяет время последнего ping
// или pong. Если прошло больше HeartbeatConfig.Timeout (60s), сессия закрывается
// с ErrLivenessTimeout и ping не отправляется, иначе клиенту уходит пустой ping.
// Кадры с данными живость не продлевают.
package ws
