package ratelimiting

import "time"

const (
	ClassDefault = "default"
	ClassForce   = "force"
	ClassStats   = "stats"
)

type policy struct {
	limit  int64
	window time.Duration
}

var policies = map[string]policy{
	ClassDefault: {limit: 60, window: time.Minute},
	ClassForce:   {limit: 5, window: time.Minute},
	ClassStats:   {limit: 30, window: time.Minute},
}

// OptionsForClass returns the limits for class. Unknown classes get the default limits.
func OptionsForClass(class string, adminSecret string) Options {
	p, ok := policies[class]
	if !ok {
		class = ClassDefault
		p = policies[ClassDefault]
	}
	return Options{
		Class:       class,
		Limit:       p.limit,
		Window:      p.window,
		AdminSecret: adminSecret,
	}
}
