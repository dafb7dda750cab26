package xdgportal

import (
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"reflect"
	"strconv"
	"strings"

	"github.com/godbus/dbus/v5"
)

const (
	objectName        = "org.freedesktop.portal.Desktop"
	objectPath        = "/org/freedesktop/portal/desktop"
	callBaseName      = "org.freedesktop.portal"
	propertiesGetName = "org.freedesktop.DBus.Properties.Get"

	requestInterface = callBaseName + ".Request"
	responseMember   = "Response"
	sessionClose     = callBaseName + ".Session.Close"
)

// ResponseStatus is the code carried by org.freedesktop.portal.Request::Response.
type ResponseStatus = uint32

const (
	Success   ResponseStatus = 0
	Cancelled ResponseStatus = 1
	Ended     ResponseStatus = 2
)

var ErrUnexpectedResponse = errors.New("unexpected response from dbus")

var (
	boolSignature   = dbus.SignatureOfType(reflect.TypeOf(false))
	stringSignature = dbus.SignatureOfType(reflect.TypeOf(""))
	uint32Signature = dbus.SignatureOfType(reflect.TypeOf(uint32(0)))
)

func fromBool(v bool) dbus.Variant     { return dbus.MakeVariantWithSignature(v, boolSignature) }
func fromString(v string) dbus.Variant { return dbus.MakeVariantWithSignature(v, stringSignature) }
func fromUint32(v uint32) dbus.Variant { return dbus.MakeVariantWithSignature(v, uint32Signature) }

func generateToken() string {
	n, _ := rand.Int(rand.Reader, big.NewInt(1<<32))
	return "screenrec" + strconv.FormatUint(n.Uint64(), 16)
}

// requestPath predicts the Request object the portal will create for token,
// so the Response signal can be subscribed before the call is made.
func requestPath(conn *dbus.Conn, token string) dbus.ObjectPath {
	sender := strings.TrimPrefix(conn.Names()[0], ":")
	sender = strings.ReplaceAll(sender, ".", "_")
	return dbus.ObjectPath(objectPath + "/request/" + sender + "/" + token)
}

// request performs a portal method that answers through a Request object and
// waits for its Response signal.
func request(conn *dbus.Conn, method string, options map[string]dbus.Variant, args ...any) (ResponseStatus, map[string]dbus.Variant, error) {
	token := generateToken()
	options["handle_token"] = fromString(token)
	path := requestPath(conn, token)

	if err := conn.AddMatchSignal(
		dbus.WithMatchObjectPath(path),
		dbus.WithMatchInterface(requestInterface),
		dbus.WithMatchMember(responseMember),
	); err != nil {
		return Ended, nil, fmt.Errorf("subscribe %s: %w", method, err)
	}
	defer func() {
		_ = conn.RemoveMatchSignal(
			dbus.WithMatchObjectPath(path),
			dbus.WithMatchInterface(requestInterface),
			dbus.WithMatchMember(responseMember),
		)
	}()

	signals := make(chan *dbus.Signal, 4)
	conn.Signal(signals)
	defer conn.RemoveSignal(signals)

	args = append(args, options)
	call := conn.Object(objectName, objectPath).Call(method, 0, args...)
	if call.Err != nil {
		return Ended, nil, fmt.Errorf("%s: %w", method, call.Err)
	}

	for sig := range signals {
		if sig.Path != path || sig.Name != requestInterface+"."+responseMember {
			continue
		}
		if len(sig.Body) != 2 {
			return Ended, nil, ErrUnexpectedResponse
		}
		status, ok := sig.Body[0].(uint32)
		if !ok {
			return Ended, nil, ErrUnexpectedResponse
		}
		results, ok := sig.Body[1].(map[string]dbus.Variant)
		if !ok {
			return Ended, nil, ErrUnexpectedResponse
		}
		return status, results, nil
	}
	return Ended, nil, ErrUnexpectedResponse
}

func getProperty(conn *dbus.Conn, iface, property string) (any, error) {
	call := conn.Object(objectName, objectPath).Call(propertiesGetName, 0, iface, property)
	if call.Err != nil {
		return nil, call.Err
	}
	var value any
	err := call.Store(&value)
	return value, err
}
