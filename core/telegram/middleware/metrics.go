package middleware

import tele "gopkg.in/telebot.v4"

// UpdateObserver counts inbound updates by kind.
type UpdateObserver interface {
	ObserveUpdate(kind string)
}

// UpdateCounterMiddleware reports every update that reaches it to obs.
func UpdateCounterMiddleware(obs UpdateObserver) tele.MiddlewareFunc {
	return func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) error {
			if obs != nil {
				obs.ObserveUpdate(UpdateKind(c.Update()))
			}
			return next(c)
		}
	}
}
