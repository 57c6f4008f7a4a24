//go:build !linux && !darwin

package watch

// Protect is unavailable on this platform; Supported reports false so the
// loader falls back to eager loading.
type Protect struct{}

var _ Provider = (*Protect)(nil)

// NewProtect returns an unsupported Protect watcher.
func NewProtect(ProtectOptions) *Protect { return &Protect{} }

// Supported reports false.
func (p *Protect) Supported() bool { return false }

// New always fails with ErrUnsupported.
func (p *Protect) New(FaultFunc, IdleFunc) (Watcher, error) { return nil, ErrUnsupported }

// Guard runs fn unguarded.
func (p *Protect) Guard(fn func()) error {
	fn()
	return nil
}
