// Package devices enumerates OS audio endpoints for display. This is an
// external collaborator per spec.md §1: it is never used by the capture
// adapters themselves, only by the CLI's --list-desktop-devices flag.
package devices

import (
	"fmt"
	"io"

	"github.com/gen2brain/malgo"
)

// RenderDevice is one enumerated playback (render) endpoint.
type RenderDevice struct {
	Name      string
	IsDefault bool
}

// ListRenderDevices enumerates playback endpoints, the render side a
// desktop loopback adapter would capture from.
func ListRenderDevices() ([]RenderDevice, error) {
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, fmt.Errorf("init audio context: %w", err)
	}
	defer func() {
		ctx.Uninit()
		ctx.Free()
	}()

	infos, err := ctx.Devices(malgo.Playback)
	if err != nil {
		return nil, fmt.Errorf("enumerate render devices: %w", err)
	}

	out := make([]RenderDevice, 0, len(infos))
	for _, info := range infos {
		out = append(out, RenderDevice{Name: info.Name(), IsDefault: info.IsDefault != 0})
	}
	return out, nil
}

// Print writes one line per device to w, marking the default endpoint.
func Print(w io.Writer, devs []RenderDevice) {
	for _, d := range devs {
		if d.IsDefault {
			fmt.Fprintf(w, "  %s (default)\n", d.Name)
		} else {
			fmt.Fprintf(w, "  %s\n", d.Name)
		}
	}
}
