package app

import "github.com/olivoil/projectboard/internal/config"

// AppName is the program name shown in the header.
const AppName = config.AppName

// AppVersion is set at build time with -ldflags "-X".
var AppVersion = "dev"
