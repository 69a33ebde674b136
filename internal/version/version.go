package version

// Version перезаписывается при сборке через -ldflags "-X".
var Version = "dev"
