package outbound

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"

	"github.com/banshee-data/vrlink/internal/httputil"
)

// ContentType is the media type of an encoded command message.
const ContentType = "application/bson"

// Transport delivers one encoded command message. No acknowledgement is
// expected.
type Transport interface {
	Send(ctx context.Context, payload []byte) error
	Close() error
	String() string
}

// UDPTransport sends each message as one datagram.
type UDPTransport struct {
	conn    net.Conn
	address string
}

// DialUDP connects a UDP socket to host:port.
func DialUDP(host string, port int) (*UDPTransport, error) {
	address := net.JoinHostPort(host, fmt.Sprint(port))
	raddr, err := net.ResolveUDPAddr("udp", address)
	if err != nil {
		return nil, fmt.Errorf("resolve workstation address: %w", err)
	}
	conn, err := net.DialUDP("udp", nil, raddr)
	if err != nil {
		return nil, fmt.Errorf("dial workstation: %w", err)
	}
	return &UDPTransport{conn: conn, address: address}, nil
}

func (t *UDPTransport) Send(_ context.Context, payload []byte) error {
	_, err := t.conn.Write(payload)
	return err
}

func (t *UDPTransport) Close() error   { return t.conn.Close() }
func (t *UDPTransport) String() string { return "udp://" + t.address }

// HTTPTransport POSTs each message to the workstation's /unity endpoint. The
// response is drained and ignored.
type HTTPTransport struct {
	client httputil.HTTPClient
	url    string
}

// NewHTTPTransport returns a transport posting to http://host:port/unity.
func NewHTTPTransport(client httputil.HTTPClient, host string, port int) *HTTPTransport {
	return &HTTPTransport{
		client: client,
		url:    "http://" + net.JoinHostPort(host, fmt.Sprint(port)) + "/unity",
	}
}

func (t *HTTPTransport) Send(ctx context.Context, payload []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", ContentType)
	resp, err := t.client.Do(req)
	if err != nil {
		return err
	}
	io.Copy(io.Discard, resp.Body)
	return resp.Body.Close()
}

func (t *HTTPTransport) Close() error   { return nil }
func (t *HTTPTransport) String() string { return t.url }
