// Package redistest provides an in-memory redis server speaking RESP over
// net.Pipe, for tests of the client.
package redistest

import (
	"context"
	"errors"
	"net"
	"strconv"
	"strings"
	"sync"

	"github.com/jsp-lqk/metapipe-redis/internal"
	"github.com/jsp-lqk/metapipe-redis/internal/resp"
)

// Server implements a small subset of redis commands. Replies can be held
// back to keep requests waiting on the client side.
type Server struct {
	// Password, when set, is required by AUTH
	Password string

	mu        sync.Mutex
	data      map[string]interface{}
	conns     []*session
	received  []string
	holding   bool
	failDials int
}

type session struct {
	conn    net.Conn
	writeMu sync.Mutex
	held    []byte
	inMulti bool
	queued  [][]string
}

func NewServer() *Server {
	return &Server{data: make(map[string]interface{})}
}

// Dialer returns a transport factory connecting to s
func (s *Server) Dialer() internal.Dialer {
	return internal.DialerFunc(func(ctx context.Context, address string) (internal.Transport, error) {
		s.mu.Lock()
		if s.failDials > 0 {
			s.failDials--
			s.mu.Unlock()
			return nil, errors.New("connection refused")
		}
		s.mu.Unlock()
		client, server := net.Pipe()
		s.Serve(server)
		return client, nil
	})
}

// FailDials makes the next n dials fail
func (s *Server) FailDials(n int) {
	s.mu.Lock()
	s.failDials = n
	s.mu.Unlock()
}

// Serve answers requests arriving on conn until it is closed
func (s *Server) Serve(conn net.Conn) {
	sess := &session{conn: conn}
	s.mu.Lock()
	s.conns = append(s.conns, sess)
	s.mu.Unlock()
	go s.serve(sess)
}

func (s *Server) serve(sess *session) {
	defer sess.conn.Close()
	decoder := resp.NewDecoder(0)
	buf := make([]byte, 4096)
	for {
		n, err := sess.conn.Read(buf)
		if err != nil {
			return
		}
		decoder.Feed(buf[:n])
		for {
			v, err := decoder.Next()
			if errors.Is(err, resp.ErrIncomplete) {
				break
			}
			if err != nil {
				return
			}
			args := make([]string, 0, len(v.Elems()))
			for _, e := range v.Elems() {
				args = append(args, e.String())
			}
			reply := s.handle(sess, args)
			if err := s.reply(sess, reply.AppendTo(nil)); err != nil {
				return
			}
		}
	}
}

func (s *Server) reply(sess *session, b []byte) error {
	sess.writeMu.Lock()
	defer sess.writeMu.Unlock()
	s.mu.Lock()
	holding := s.holding
	s.mu.Unlock()
	if holding {
		sess.held = append(sess.held, b...)
		return nil
	}
	_, err := sess.conn.Write(b)
	return err
}

// Hold stops writing replies, they are buffered until Release
func (s *Server) Hold() {
	s.mu.Lock()
	s.holding = true
	s.mu.Unlock()
}

// Release writes every held reply, in order, and resumes normal operation
func (s *Server) Release() {
	s.mu.Lock()
	conns := append([]*session(nil), s.conns...)
	s.mu.Unlock()
	for _, sess := range conns {
		sess.writeMu.Lock()
	}
	s.mu.Lock()
	s.holding = false
	s.mu.Unlock()
	for _, sess := range conns {
		held := sess.held
		sess.held = nil
		if len(held) > 0 {
			_, _ = sess.conn.Write(held)
		}
		sess.writeMu.Unlock()
	}
}

// Inject writes raw bytes to every connection, bypassing request handling
func (s *Server) Inject(raw []byte) {
	s.mu.Lock()
	conns := append([]*session(nil), s.conns...)
	s.mu.Unlock()
	for _, sess := range conns {
		sess.writeMu.Lock()
		_, _ = sess.conn.Write(raw)
		sess.writeMu.Unlock()
	}
}

// Drop closes every connection from the server side
func (s *Server) Drop() {
	s.mu.Lock()
	conns := s.conns
	s.conns = nil
	s.mu.Unlock()
	for _, sess := range conns {
		_ = sess.conn.Close()
	}
}

// Received returns every command handled so far, formatted as "NAME arg ..."
func (s *Server) Received() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.received...)
}

func (s *Server) handle(sess *session, args []string) resp.Value {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(args) == 0 {
		return resp.MakeError("ERR empty command")
	}
	s.received = append(s.received, strings.Join(args, " "))
	name := strings.ToUpper(args[0])
	if sess.inMulti {
		switch name {
		case "EXEC":
			sess.inMulti = false
			results := make([]resp.Value, 0, len(sess.queued))
			for _, q := range sess.queued {
				results = append(results, s.exec(q))
			}
			sess.queued = nil
			return resp.MakeArray(results...)
		case "DISCARD":
			sess.inMulti = false
			sess.queued = nil
			return resp.MakeStatus("OK")
		case "MULTI":
			return resp.MakeError("ERR MULTI calls can not be nested")
		}
		sess.queued = append(sess.queued, args)
		return resp.MakeStatus("QUEUED")
	}
	switch name {
	case "MULTI":
		sess.inMulti = true
		return resp.MakeStatus("OK")
	case "EXEC", "DISCARD":
		return resp.MakeError("ERR " + name + " without MULTI")
	}
	return s.exec(args)
}

var wrongType = resp.MakeError("WRONGTYPE Operation against a key holding the wrong kind of value")

func (s *Server) exec(args []string) resp.Value {
	name := strings.ToUpper(args[0])
	switch name {
	case "PING":
		if len(args) > 1 {
			return resp.MakeBulk([]byte(args[1]))
		}
		return resp.MakeStatus("PONG")
	case "ECHO":
		if len(args) != 2 {
			return argNum(name)
		}
		return resp.MakeBulk([]byte(args[1]))
	case "AUTH":
		if len(args) != 2 {
			return argNum(name)
		}
		if args[1] != s.Password {
			return resp.MakeError("WRONGPASS invalid username-password pair or user is disabled.")
		}
		return resp.MakeStatus("OK")
	case "SELECT":
		if len(args) != 2 {
			return argNum(name)
		}
		db, err := strconv.Atoi(args[1])
		if err != nil || db < 0 || db > 15 {
			return resp.MakeError("ERR DB index is out of range")
		}
		return resp.MakeStatus("OK")
	case "SET":
		if len(args) != 3 {
			return argNum(name)
		}
		s.data[args[1]] = args[2]
		return resp.MakeStatus("OK")
	case "GET":
		if len(args) != 2 {
			return argNum(name)
		}
		switch v := s.data[args[1]].(type) {
		case nil:
			return resp.MakeNull()
		case string:
			return resp.MakeBulk([]byte(v))
		default:
			return wrongType
		}
	case "DEL":
		n := int64(0)
		for _, k := range args[1:] {
			if _, ok := s.data[k]; ok {
				delete(s.data, k)
				n++
			}
		}
		return resp.MakeInt(n)
	case "INCR":
		if len(args) != 2 {
			return argNum(name)
		}
		var cur int64
		switch v := s.data[args[1]].(type) {
		case nil:
		case string:
			n, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				return resp.MakeError("ERR value is not an integer or out of range")
			}
			cur = n
		default:
			return wrongType
		}
		cur++
		s.data[args[1]] = strconv.FormatInt(cur, 10)
		return resp.MakeInt(cur)
	case "RPUSH":
		if len(args) < 3 {
			return argNum(name)
		}
		var list []string
		switch v := s.data[args[1]].(type) {
		case nil:
		case []string:
			list = v
		default:
			return wrongType
		}
		list = append(list, args[2:]...)
		s.data[args[1]] = list
		return resp.MakeInt(int64(len(list)))
	case "LPOP":
		if len(args) != 2 {
			return argNum(name)
		}
		switch v := s.data[args[1]].(type) {
		case nil:
			return resp.MakeNull()
		case []string:
			head := v[0]
			if len(v) == 1 {
				delete(s.data, args[1])
			} else {
				s.data[args[1]] = v[1:]
			}
			return resp.MakeBulk([]byte(head))
		default:
			return wrongType
		}
	case "LRANGE":
		if len(args) != 4 {
			return argNum(name)
		}
		list, ok := s.data[args[1]].([]string)
		if !ok && s.data[args[1]] != nil {
			return wrongType
		}
		elems := make([]resp.Value, 0, len(list))
		for _, e := range list {
			elems = append(elems, resp.MakeBulk([]byte(e)))
		}
		return resp.MakeArray(elems...)
	default:
		return resp.MakeError("ERR unknown command '" + args[0] + "'")
	}
}

func argNum(name string) resp.Value {
	return resp.MakeError("ERR wrong number of arguments for '" + strings.ToLower(name) + "' command")
}
