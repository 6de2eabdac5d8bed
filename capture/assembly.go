package capture

import (
	"bufio"
	"bytes"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/reassembly"
)

// Exchange is one request with its response, bodies still content-encoded.
type Exchange struct {
	Request      *http.Request
	RequestBody  []byte
	Response     *http.Response
	ResponseBody []byte
}

type ExchangeHandler interface {
	HandleExchange(ex Exchange)
}

type ExchangeHandlerFunc func(ex Exchange)

func (f ExchangeHandlerFunc) HandleExchange(ex Exchange) {
	f(ex)
}

// Assembler reassembles tcp streams and hands every complete http
// exchange to its handler. Not safe for concurrent use.
type Assembler struct {
	pool      *reassembly.StreamPool
	assembler *reassembly.Assembler
}

func NewAssembler(h ExchangeHandler) *Assembler {
	p := reassembly.NewStreamPool(&streamFactory{h: h})
	a := reassembly.NewAssembler(p)
	return &Assembler{pool: p, assembler: a}
}

type assemblyContext struct {
	CaptureInfo gopacket.CaptureInfo
}

func (c *assemblyContext) GetCaptureInfo() gopacket.CaptureInfo {
	return c.CaptureInfo
}

func (a *Assembler) Assemble(p gopacket.Packet) {
	tcp := p.Layer(layers.LayerTypeTCP)
	if tcp == nil || p.NetworkLayer() == nil {
		return
	}

	c := assemblyContext{CaptureInfo: p.Metadata().CaptureInfo}
	a.assembler.AssembleWithContext(p.NetworkLayer().NetworkFlow(), tcp.(*layers.TCP), &c)
}

func (a *Assembler) FlushOlderThan(t time.Time) {
	flushed, closed := a.assembler.FlushCloseOlderThan(t)
	if flushed > 0 || closed > 0 {
		slog.Debug("flushed streams", "flushed", flushed, "closed", closed)
	}
}

func (a *Assembler) FlushAll() {
	a.assembler.FlushAll()
}

type streamFactory struct {
	h ExchangeHandler
}

func (f *streamFactory) New(netFlow, tcpFlow gopacket.Flow, tcp *layers.TCP, ac reassembly.AssemblerContext) reassembly.Stream {
	return &stream{h: f.h, flow: netFlow.String() + " " + tcpFlow.String()}
}

// stream buffers the client and server halves of one connection until a
// full request and response can be parsed from them.
type stream struct {
	h    ExchangeHandler
	flow string
	req  []byte
	res  []byte
}

func (s *stream) Accept(tcp *layers.TCP, ci gopacket.CaptureInfo, dir reassembly.TCPFlowDirection, nextSeq reassembly.Sequence, start *bool, ac reassembly.AssemblerContext) bool {
	// pick up connections that were already open when the capture started
	*start = true
	return true
}

func (s *stream) ReassembledSG(sg reassembly.ScatterGather, ac reassembly.AssemblerContext) {
	l, _ := sg.Lengths()
	if l == 0 {
		return
	}
	dir, _, _, skip := sg.Info()
	if skip != 0 {
		slog.Debug("lost data, dropping exchange", "flow", s.flow, "skip", skip)
		s.reset()
		return
	}

	data := sg.Fetch(l)
	if dir == reassembly.TCPDirClientToServer {
		if len(s.res) > 0 {
			// a new request started before the last response completed
			s.reset()
		}
		s.req = append(s.req, data...)
		return
	}
	s.res = append(s.res, data...)
	s.tryEmit()
}

func (s *stream) ReassemblyComplete(ac reassembly.AssemblerContext) bool {
	s.tryEmit()
	return true
}

func (s *stream) reset() {
	s.req = s.req[:0]
	s.res = s.res[:0]
}

// tryEmit waits for more data while either half is incomplete.
func (s *stream) tryEmit() {
	if len(s.req) == 0 || len(s.res) == 0 {
		return
	}
	r, err := http.ReadRequest(bufio.NewReader(bytes.NewReader(s.req)))
	if err != nil {
		return
	}
	rb, err := io.ReadAll(r.Body)
	if err != nil {
		return
	}
	w, err := http.ReadResponse(bufio.NewReader(bytes.NewReader(s.res)), r)
	if err != nil {
		return
	}
	wb, err := io.ReadAll(w.Body)
	if err != nil {
		return
	}

	s.h.HandleExchange(Exchange{Request: r, RequestBody: rb, Response: w, ResponseBody: wb})
	s.reset()
}
