package application

import "expvar"

// metrics is published under /api/debug/vars as "accounts".
var metrics = expvar.NewMap("accounts")
