package server

//go:generate swag init -g internal/server/server.go -o docs/swagger

// @title Slotwatch API
// @version 0.1
// @description Interactive documentation for the slotwatch availability checker API surface.
// @contact.name Slotwatch Maintainers
// @contact.url https://github.com/otarkhan/slotwatch
// @BasePath /
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
