package control

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"io"
	"net"
	"strings"
)

// ErrAuthRequired is returned by ListenTCP when a TCP listener is
// configured without an auth token, per spec.md §6's exit-code 4 ("control
// auth missing for TCP") — cmd/trustrun maps this to that exit code at
// startup rather than silently accepting an unauthenticated TCP listener.
var ErrAuthRequired = errors.New("control: TCP listener requires a non-empty auth token")

// maxFrameSize bounds a single request frame; spec.md's bytecode reload
// payload is the largest legitimate body, so this is generous rather than
// tight.
const maxFrameSize = 64 << 20

// FrameListener serves length-prefixed (4-byte big-endian length + JSON
// body) request/response frames over TCP or a unix socket. TCP listeners
// require an auth token; a unix socket may be built with requireAuth
// false, per spec.md §6.
type FrameListener struct {
	Server      *Server
	RequireAuth bool
	Limiter     *Limiter
}

// ListenTCP starts a FrameListener on addr, requiring auth. Returns
// ErrAuthRequired immediately if s.AuthToken is empty, instead of starting
// a listener an attacker could query without a token.
func ListenTCP(addr string, s *Server, limiter *Limiter) (net.Listener, error) {
	if s.AuthToken == "" {
		return nil, ErrAuthRequired
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	fl := &FrameListener{Server: s, RequireAuth: true, Limiter: limiter}
	go fl.serve(ln)
	return ln, nil
}

// ListenUnix starts a FrameListener on a unix socket path; auth is
// optional there, per spec.md §6.
func ListenUnix(path string, s *Server, limiter *Limiter) (net.Listener, error) {
	ln, err := net.Listen("unix", path)
	if err != nil {
		return nil, err
	}
	fl := &FrameListener{Server: s, RequireAuth: false, Limiter: limiter}
	go fl.serve(ln)
	return ln, nil
}

func (fl *FrameListener) serve(ln net.Listener) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		go fl.handleConn(conn)
	}
}

func (fl *FrameListener) handleConn(conn net.Conn) {
	defer conn.Close()
	client := conn.RemoteAddr().String()
	if idx := strings.LastIndex(client, ":"); idx >= 0 {
		client = client[:idx]
	}
	if client == "" {
		client = "local"
	}

	ctx := context.Background()
	for {
		req, err := readFrame(conn)
		if err != nil {
			return
		}
		if fl.Limiter != nil && !fl.Limiter.Allow(client) {
			writeFrame(conn, Response{ID: req.ID, OK: false, Error: "rate limit exceeded"})
			continue
		}
		resp := fl.Server.Handle(ctx, req, client, fl.RequireAuth)
		if err := writeFrame(conn, resp); err != nil {
			return
		}
	}
}

func readFrame(r io.Reader) (Request, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return Request{}, err
	}
	n := binary.BigEndian.Uint32(lenBuf[:])
	if n > maxFrameSize {
		return Request{}, errors.New("control: frame exceeds maxFrameSize")
	}
	body := make([]byte, n)
	if _, err := io.ReadFull(r, body); err != nil {
		return Request{}, err
	}
	var req Request
	if err := json.Unmarshal(body, &req); err != nil {
		return Request{}, err
	}
	return req, nil
}

func writeFrame(w io.Writer, resp Response) error {
	body, err := json.Marshal(resp)
	if err != nil {
		return err
	}
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(body)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return err
	}
	_, err = w.Write(body)
	return err
}

// WriteRequest and ReadResponse are the client-side mirror of
// writeFrame/readFrame, exported for cmd/trustrun's status command and any
// other out-of-process caller of the TCP/unix framing.
func WriteRequest(w io.Writer, req Request) error {
	body, err := json.Marshal(req)
	if err != nil {
		return err
	}
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(body)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return err
	}
	_, err = w.Write(body)
	return err
}

func ReadResponse(r io.Reader) (Response, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return Response{}, err
	}
	n := binary.BigEndian.Uint32(lenBuf[:])
	if n > maxFrameSize {
		return Response{}, errors.New("control: frame exceeds maxFrameSize")
	}
	body := make([]byte, n)
	if _, err := io.ReadFull(r, body); err != nil {
		return Response{}, err
	}
	var resp Response
	if err := json.Unmarshal(body, &resp); err != nil {
		return Response{}, err
	}
	return resp, nil
}
