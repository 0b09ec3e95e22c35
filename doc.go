/*
Package flux-server provides the request-side core of an event-driven
HTTP/1.x server: a lazily-parsing request object, an incremental wire
parser, an event-loop pool, and a listener manager with per-listener TLS
and hot certificate reload.

Every accepted connection is pinned to one event loop; all parsing and
every mutation of the in-flight request happen on that loop, so request
accessors can cache parsed views without locking.

Quick Start

Basic usage example:

package main

import (
    "github.com/fluxhttp/flux-server/app"
    "github.com/fluxhttp/flux-server/config"
    "github.com/fluxhttp/flux-server/core/http"
    "github.com/fluxhttp/flux-server/core/server"
)

func main() {
    cfg := config.New()
    application := app.New(cfg)

    application.SetRequestHandler(func(req *http.Request, c *server.Conn) {
        c.Write([]byte("HTTP/1.1 200 OK\r\nContent-Length: 2\r\n\r\nok"))
    })

    application.Run()
}

Modules

The framework is organized into several modules:

  - app: Application lifecycle management
  - config: YAML configuration loading
  - core/http: Request model, wire parser, body storage, decompression,
    streaming delivery
  - core/loop: Event-loop pool (serialized task execution per loop)
  - core/server: Listener registry, accept path, TLS material and reload

For more information, see https://github.com/fluxhttp/flux-server
*/
package fluxserver
