package workspace

import (
	"context"
	"strings"
	"sync"

	"atsbeaters/internal/ai"
	apperrors "atsbeaters/internal/errors"
	"atsbeaters/internal/tasks"
)

// Image is raw image bytes with a MIME type
type Image struct {
	Data     []byte
	MIMEType string
}

// PhotoEditor holds a source headshot and the latest edit
type PhotoEditor struct {
	gateway ai.Gateway
	users   UserSource
	opts    options

	mu      sync.Mutex
	source  *Image
	edited  *Image
	err     error
	running bool
}

// NewPhotoEditor creates an editor with no image loaded
func NewPhotoEditor(gateway ai.Gateway, users UserSource, opts ...Option) *PhotoEditor {
	return &PhotoEditor{gateway: gateway, users: users, opts: buildOptions(opts)}
}

// Load sets the source image and clears any previous edit
func (p *PhotoEditor) Load(img Image) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.source = &img
	p.edited = nil
	p.err = nil
}

// Edited returns the latest edited image, or nil
func (p *PhotoEditor) Edited() *Image {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.edited
}

// Err returns the error of the last edit
func (p *PhotoEditor) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

// Edit applies instruction to the source image. On failure the previous
// edited image is kept.
func (p *PhotoEditor) Edit(ctx context.Context, instruction string) (*Image, error) {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return nil, ErrBusy
	}
	if p.source == nil {
		p.mu.Unlock()
		return nil, apperrors.NewValidationError(apperrors.ErrCodeInvalidInput, "no photo loaded", nil)
	}
	if strings.TrimSpace(instruction) == "" {
		p.mu.Unlock()
		return nil, apperrors.NewValidationError(apperrors.ErrCodeInvalidInput, "describe the edit to apply", nil)
	}
	source := *p.source
	p.mu.Unlock()

	if err := checkGate(ctx, p.users, tasks.PhotoEdit, p.opts.observer); err != nil {
		return nil, err
	}

	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return nil, ErrBusy
	}
	p.running = true
	p.mu.Unlock()

	start := p.opts.now()
	out, err := p.gateway.EditImage(ctx, source.Data, source.MIMEType, instruction)

	p.mu.Lock()
	defer p.mu.Unlock()
	p.running = false

	state := StateSucceeded
	if err != nil {
		state = StateFailed
	}
	p.opts.observer.TaskFinished(ctx, tasks.PhotoEdit, state, p.opts.now().Sub(start))

	if err != nil {
		p.err = err
		return nil, err
	}
	p.err = nil
	p.edited = &Image{Data: out.Data, MIMEType: out.MIMEType}
	return p.edited, nil
}
