// internal/services/actor.go
package services

import "github.com/javajoker/partner-engine/internal/models"

// Actor identifies who triggered a change. It is written to the audit log.
type Actor struct {
	ID string
	IP string
}

var SystemActor = Actor{ID: models.SystemActor}
