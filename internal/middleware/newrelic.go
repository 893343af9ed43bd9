package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/newrelic/go-agent/v3/integrations/nrgin"
)

// NewRelicAttributes annotates the transaction started by nrgin with the
// caller and ride being acted on. It must run after AuthMiddleware.
func NewRelicAttributes() gin.HandlerFunc {
	return func(c *gin.Context) {
		txn := nrgin.Transaction(c)
		if txn == nil {
			c.Next()
			return
		}

		if actor, ok := CallerActor(c); ok {
			txn.AddAttribute("user.id", actor.UserID)
			txn.AddAttribute("user.role", string(actor.Role))
		}
		if rideID := c.Param("id"); rideID != "" {
			txn.AddAttribute("ride.id", rideID)
		}

		c.Next()

		for _, err := range c.Errors {
			txn.NoticeError(err.Err)
		}
	}
}
