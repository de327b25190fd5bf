// Package api provides the HTTP REST API and WebSocket server for NearClip Core.
//
// It exposes the device catalog, the connection lifecycle operations and
// live queries to user interfaces. All routes live under /api/v1:
//
//	GET    /health
//	GET    /devices?filter=connected|paired&type=MAC
//	GET    /devices/{id}
//	DELETE /devices/{id}                 forget
//	POST   /devices/{id}/connect
//	POST   /devices/{id}/disconnect
//	POST   /devices/{id}/pair
//	GET    /connections                  connection view snapshot
//	GET    /stats
//	POST   /discovery/start
//	POST   /discovery/stop
//	GET    /ws?query=connected           live query stream
//
// Every route but /health requires a bearer token when a JWT secret is
// configured. WebSocket clients may pass the token as ?token= instead.
package api
