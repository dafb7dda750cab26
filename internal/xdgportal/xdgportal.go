// Package xdgportal talks to org.freedesktop.portal.ScreenCast over the
// session bus.
package xdgportal

import (
	"errors"
	"fmt"
	"os"

	"github.com/godbus/dbus/v5"
)

const (
	interfaceName      = callBaseName + ".ScreenCast"
	createSessionName  = interfaceName + ".CreateSession"
	selectSourcesName  = interfaceName + ".SelectSources"
	startName          = interfaceName + ".Start"
	openPipeWireRemote = interfaceName + ".OpenPipeWireRemote"
)

const (
	SourceTypeMonitor uint32 = 1
	SourceTypeWindow  uint32 = 2
	SourceTypeVirtual uint32 = 4
)

const (
	CursorModeHidden   uint32 = 1
	CursorModeEmbedded uint32 = 2
	CursorModeMetadata uint32 = 4
)

// ErrCancelled is returned when the user dismisses the portal dialog.
var ErrCancelled = errors.New("screencast request was cancelled")

type Stream struct {
	NodeID     uint32
	Position   [2]int32
	Size       [2]int32
	SourceType uint32
}

type Session struct {
	conn *dbus.Conn
	Path dbus.ObjectPath
}

type SelectSourcesOptions struct {
	Types      uint32
	Multiple   bool
	CursorMode uint32
}

// GetVersion reports the ScreenCast interface version of the running portal.
func GetVersion() (uint32, error) {
	conn, err := dbus.SessionBus()
	if err != nil {
		return 0, err
	}
	value, err := getProperty(conn, interfaceName, "version")
	if err != nil {
		return 0, err
	}
	v, ok := value.(uint32)
	if !ok {
		return 0, fmt.Errorf("property version returned unexpected type %T", value)
	}
	return v, nil
}

// CreateSession opens a new ScreenCast session.
func CreateSession() (*Session, error) {
	conn, err := dbus.SessionBus()
	if err != nil {
		return nil, err
	}

	status, results, err := request(conn, createSessionName, map[string]dbus.Variant{
		"session_handle_token": fromString(generateToken()),
	})
	if err != nil {
		return nil, err
	}
	if status >= Cancelled {
		return nil, ErrCancelled
	}

	handle, ok := results["session_handle"]
	if !ok {
		return nil, fmt.Errorf("CreateSession response missing session_handle")
	}
	// Older portals send a string, newer ones an object path.
	switch v := handle.Value().(type) {
	case string:
		return &Session{conn: conn, Path: dbus.ObjectPath(v)}, nil
	case dbus.ObjectPath:
		return &Session{conn: conn, Path: v}, nil
	default:
		return nil, fmt.Errorf("CreateSession session_handle has unexpected type %T", v)
	}
}

func (s *Session) SelectSources(options SelectSourcesOptions) error {
	data := map[string]dbus.Variant{}
	if options.Types != 0 {
		data["types"] = fromUint32(options.Types)
	}
	if options.Multiple {
		data["multiple"] = fromBool(true)
	}
	if options.CursorMode != 0 {
		data["cursor_mode"] = fromUint32(options.CursorMode)
	}

	status, _, err := request(s.conn, selectSourcesName, data, s.Path)
	if err != nil {
		return err
	}
	if status >= Cancelled {
		return ErrCancelled
	}
	return nil
}

// Start shows the picker and returns the streams the user granted.
func (s *Session) Start(parentWindow string) ([]Stream, error) {
	status, results, err := request(s.conn, startName, map[string]dbus.Variant{}, s.Path, parentWindow)
	if err != nil {
		return nil, err
	}
	if status >= Cancelled {
		return nil, ErrCancelled
	}

	streamVariant, ok := results["streams"]
	if !ok {
		return nil, nil
	}

	var rawStreams [][]any
	switch rs := streamVariant.Value().(type) {
	case [][]any:
		rawStreams = rs
	case []any:
		for _, r := range rs {
			if s, ok := r.([]any); ok {
				rawStreams = append(rawStreams, s)
			}
		}
	default:
		return nil, nil
	}

	streams := make([]Stream, 0, len(rawStreams))
	for _, raw := range rawStreams {
		if len(raw) < 2 {
			continue
		}
		var stream Stream
		if nodeID, ok := raw[0].(uint32); ok {
			stream.NodeID = nodeID
		}
		if props, ok := raw[1].(map[string]dbus.Variant); ok {
			if pos, ok := props["position"]; ok {
				if p, ok := parseInt32Pair(pos.Value()); ok {
					stream.Position = p
				}
			}
			if size, ok := props["size"]; ok {
				if p, ok := parseInt32Pair(size.Value()); ok {
					stream.Size = p
				}
			}
			if st, ok := props["source_type"]; ok {
				if v, ok := st.Value().(uint32); ok {
					stream.SourceType = v
				}
			}
		}
		streams = append(streams, stream)
	}
	return streams, nil
}

// OpenPipeWireRemote returns a file for the PipeWire connection scoped to
// this session. The caller owns the file.
func (s *Session) OpenPipeWireRemote() (*os.File, error) {
	call := s.conn.Object(objectName, objectPath).Call(openPipeWireRemote, 0, s.Path, map[string]dbus.Variant{})
	if call.Err != nil {
		return nil, call.Err
	}
	var fd dbus.UnixFD
	if err := call.Store(&fd); err != nil {
		return nil, err
	}
	return os.NewFile(uintptr(fd), "pipewire-remote"), nil
}

func (s *Session) Close() error {
	call := s.conn.Object(objectName, s.Path).Call(sessionClose, 0)
	return call.Err
}

func parseInt32Pair(value any) ([2]int32, bool) {
	values, ok := value.([]any)
	if !ok || len(values) < 2 {
		return [2]int32{}, false
	}
	left, ok := values[0].(int32)
	if !ok {
		return [2]int32{}, false
	}
	right, ok := values[1].(int32)
	if !ok {
		return [2]int32{}, false
	}
	return [2]int32{left, right}, true
}
