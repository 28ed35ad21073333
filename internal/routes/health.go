package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
)

type probe struct {
	name  string
	check func(context.Context) error
}

// RegisterHealthRoutes reports the reachability of each configured backend and
// the parties hosted by the node. Backends the node runs without are skipped.
func RegisterHealthRoutes(app *fiber.App, d Deps) {
	var probes []probe
	if d.DB != nil {
		probes = append(probes, probe{"postgres", d.DB.Ping})
	}
	if d.Cache != nil {
		probes = append(probes, probe{"redis", func(ctx context.Context) error { return d.Cache.Ping(ctx).Err() }})
	}

	parties := make([]string, 0, len(d.Node.Directory))
	for name := range d.Node.Directory {
		parties = append(parties, name)
	}

	app.Get("/healthz", func(c *fiber.Ctx) error {
		ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
		defer cancel()

		status := http.StatusOK
		backends := fiber.Map{}
		for _, p := range probes {
			if err := p.check(ctx); err != nil {
				backends[p.name] = err.Error()
				status = http.StatusServiceUnavailable
				continue
			}
			backends[p.name] = "ok"
		}
		return c.Status(status).JSON(fiber.Map{
			"status":    backends,
			"parties":   parties,
			"notary":    d.Node.Notary.Party().Name,
			"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
		})
	})
}
