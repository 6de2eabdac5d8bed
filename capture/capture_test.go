package capture

import (
	"bufio"
	"bytes"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/siegeai/jch/schema"
)

func exchange(t *testing.T, rawReq, rawRes string) Exchange {
	t.Helper()
	req, err := http.ReadRequest(bufio.NewReader(strings.NewReader(rawReq)))
	require.Nil(t, err)
	rb, err := io.ReadAll(req.Body)
	require.Nil(t, err)
	res, err := http.ReadResponse(bufio.NewReader(strings.NewReader(rawRes)), req)
	require.Nil(t, err)
	wb, err := io.ReadAll(res.Body)
	require.Nil(t, err)
	return Exchange{Request: req, RequestBody: rb, Response: res, ResponseBody: wb}
}

func httpRequest(method, path, body string) string {
	return method + " " + path + " HTTP/1.1\r\nHost: example.com\r\nContent-Type: application/json\r\n" +
		"Content-Length: " + strconv.Itoa(len(body)) + "\r\n\r\n" + body
}

func httpResponse(status int, body string) string {
	return "HTTP/1.1 " + strconv.Itoa(status) + " " + http.StatusText(status) + "\r\nContent-Type: application/json\r\n" +
		"Content-Length: " + strconv.Itoa(len(body)) + "\r\n\r\n" + body
}

func report(t *testing.T, l *Listener) string {
	t.Helper()
	var buf bytes.Buffer
	require.Nil(t, l.Report(&buf, schema.FormatText))
	return buf.String()
}

func TestTemplateRoute(t *testing.T) {
	r, params := templateRoute("/users/42/posts/3fa85f64-5717-4562-b3fc-2c963f66afa6")
	assert.Equal(t, "/users/{arg1}/posts/{arg2}", r)
	require.Len(t, params, 2)
	assert.Equal(t, "arg1", params[0].Value.Name)
	assert.Equal(t, "path", params[0].Value.In)
	assert.Equal(t, "uuid", params[1].Value.Schema.Value.Format)

	r, params = templateRoute("/")
	assert.Equal(t, "/", r)
	assert.Empty(t, params)

	r, _ = templateRoute("/v2/items")
	assert.Equal(t, "/v2/items", r)
}

func TestHandleExchange(t *testing.T) {
	l := NewListener(nil)
	l.HandleExchange(exchange(t,
		httpRequest("POST", "/users/7", `{"name":"bob"}`),
		httpResponse(201, `{"id":7,"tags":["a"]}`)))
	l.HandleExchange(exchange(t,
		httpRequest("POST", "/users/8", `{"name":"alice"}`),
		httpResponse(201, `{"id":8,"tags":[]}`)))

	assert.Equal(t, 2, l.Exchanges())
	assert.Equal(t, `POST /users/{arg1}/request/name String(max_len=5):2
POST /users/{arg1}/response/id Number(Unsigned,max=8):2
POST /users/{arg1}/response/tags/[] String(max_len=1):1
`, report(t, l))
	assert.False(t, l.Snapshot().Done())
}

func TestHandleExchangeSkips(t *testing.T) {
	l := NewListener(nil)
	l.HandleExchange(exchange(t, httpRequest("GET", "/boom", ""), httpResponse(503, `{"err":1}`)))
	l.HandleExchange(exchange(t, httpRequest("POST", "/bad", `{"x":1}`), httpResponse(400, `{"err":"x"}`)))
	l.HandleExchange(exchange(t, httpRequest("GET", "/html", ""),
		"HTTP/1.1 200 OK\r\nContent-Type: text/html\r\nContent-Length: 6\r\n\r\n<html>"))

	assert.Equal(t, 2, l.Exchanges())
	assert.Equal(t, "POST /bad/response/err String(max_len=1):1\n", report(t, l))
}

func TestHandleExchangeGzip(t *testing.T) {
	var body bytes.Buffer
	zw := gzip.NewWriter(&body)
	_, err := zw.Write([]byte(`{"ok":true}`))
	require.Nil(t, err)
	require.Nil(t, zw.Close())

	raw := "HTTP/1.1 200 OK\r\nContent-Encoding: gzip\r\nContent-Length: " + strconv.Itoa(body.Len()) + "\r\n\r\n" + body.String()
	l := NewListener(nil)
	l.HandleExchange(exchange(t, httpRequest("GET", "/status", ""), raw))
	assert.Equal(t, "GET /status/response/ok Boolean:1\n", report(t, l))
}

func TestHandleExchangeSyntaxError(t *testing.T) {
	l := NewListener(nil)
	l.HandleExchange(exchange(t, httpRequest("GET", "/x", ""), httpResponse(200, `{"a":,"b":1}`)))
	out := report(t, l)
	assert.Contains(t, out, "GET /x/response/b Number(Unsigned,max=1):1\n")
	assert.Contains(t, out, `["GET /x","response","a"]`)
}

func TestDocument(t *testing.T) {
	l := NewListener(nil)
	l.HandleExchange(exchange(t, httpRequest("PUT", "/items/5", `{"n":1}`), httpResponse(200, `{"n":2}`)))
	l.HandleExchange(exchange(t, httpRequest("PUT", "/items/6", `{"n":3}`), httpResponse(404, `{"n":4}`)))

	doc := l.Document()
	item := doc.Paths["/items/{arg1}"]
	require.NotNil(t, item)
	require.NotNil(t, item.Put)
	assert.Len(t, item.Put.Parameters, 1)
	assert.NotNil(t, item.Put.RequestBody.Value.Content.Get("application/json"))
	assert.Contains(t, item.Put.Responses, "200")
	assert.Contains(t, item.Put.Responses, "404")
}

func tcpPacket(t *testing.T, src, dst net.IP, sport, dport layers.TCPPort, seq uint32, payload string) gopacket.Packet {
	t.Helper()
	eth := &layers.Ethernet{
		SrcMAC:       net.HardwareAddr{0, 0, 0, 0, 0, 1},
		DstMAC:       net.HardwareAddr{0, 0, 0, 0, 0, 2},
		EthernetType: layers.EthernetTypeIPv4,
	}
	ip := &layers.IPv4{Version: 4, TTL: 64, Protocol: layers.IPProtocolTCP, SrcIP: src, DstIP: dst}
	tcp := &layers.TCP{SrcPort: sport, DstPort: dport, Seq: seq, ACK: true, PSH: true, Window: 65535}
	require.Nil(t, tcp.SetNetworkLayerForChecksum(ip))

	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	require.Nil(t, gopacket.SerializeLayers(buf, opts, eth, ip, tcp, gopacket.Payload(payload)))

	data := buf.Bytes()
	p := gopacket.NewPacket(data, layers.LayerTypeEthernet, gopacket.Default)
	p.Metadata().CaptureInfo = gopacket.CaptureInfo{Timestamp: time.Now(), CaptureLength: len(data), Length: len(data)}
	return p
}

func TestAssemblerDeliversExchange(t *testing.T) {
	var got []Exchange
	a := NewAssembler(ExchangeHandlerFunc(func(ex Exchange) {
		got = append(got, ex)
	}))

	client, server := net.IPv4(10, 0, 0, 1), net.IPv4(10, 0, 0, 2)
	req := httpRequest("POST", "/things/9", `{"a":1}`)
	res := httpResponse(200, `{"b":[true]}`)
	a.Assemble(tcpPacket(t, client, server, 40000, 80, 1000, req))
	a.Assemble(tcpPacket(t, server, client, 80, 40000, 5000, res))
	a.FlushAll()

	require.Len(t, got, 1)
	assert.Equal(t, "/things/9", got[0].Request.URL.Path)
	assert.Equal(t, `{"a":1}`, string(got[0].RequestBody))
	assert.Equal(t, 200, got[0].Response.StatusCode)
	assert.Equal(t, `{"b":[true]}`, string(got[0].ResponseBody))
}

type chanSource chan gopacket.Packet

func (c chanSource) Packets() chan gopacket.Packet {
	return c
}

func TestListenerRun(t *testing.T) {
	client, server := net.IPv4(10, 0, 0, 1), net.IPv4(10, 0, 0, 2)
	src := make(chanSource, 2)
	src <- tcpPacket(t, client, server, 40001, 80, 1, httpRequest("GET", "/ping", ""))
	src <- tcpPacket(t, server, client, 80, 40001, 1, httpResponse(200, `{"pong":1}`))
	close(src)

	l := NewListener(src)
	require.Nil(t, l.Run(t.Context()))
	assert.Equal(t, 1, l.Exchanges())
	assert.Equal(t, "GET /ping/response/pong Number(Unsigned,max=1):1\n", report(t, l))
}

func TestIsJSON(t *testing.T) {
	assert.True(t, isJSON("application/json; charset=utf-8", nil))
	assert.True(t, isJSON("application/problem+json", nil))
	assert.False(t, isJSON("text/plain", []byte(`{}`)))
	assert.True(t, isJSON("", []byte("  [1]")))
	assert.False(t, isJSON("", []byte("hello")))
}
