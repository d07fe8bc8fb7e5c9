package presence

import _ "embed"

// appIcon is the tray and notification icon
//
//go:embed icon.png
var appIcon []byte
