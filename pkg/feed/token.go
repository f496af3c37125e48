package feed

import "context"

// Token marks the lifetime of one session. Work started under a token must
// not mutate state once the token is cancelled.
type Token struct {
	ctx context.Context
}

// NewToken derives a token from parent. Calling the returned cancel function
// invalidates the token and cancels its context.
func NewToken(parent context.Context) (Token, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	return Token{ctx: ctx}, cancel
}

// Context returns the context tied to the token. Pass it to every
// asynchronous operation started for the session.
func (t Token) Context() context.Context {
	if t.ctx == nil {
		return context.Background()
	}
	return t.ctx
}

// Live reports whether the token has not been cancelled.
// The zero Token is never live.
func (t Token) Live() bool {
	return t.ctx != nil && t.ctx.Err() == nil
}
