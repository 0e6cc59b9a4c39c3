package server

type Config struct {
	// ListenAddr is the HTTP listen address, e.g. ":3000".
	ListenAddr string

	// APISecret is the bearer token inbound callers must present on
	// protected routes.
	APISecret string
}
