package client

// Router picks the connection serving a key
type Router interface {
	Route(key string) *Connection
	Close() error
}

// DirectRouter sends everything to a single connection
type DirectRouter struct {
	conn *Connection
}

func NewDirectRouter(conn *Connection) *DirectRouter {
	return &DirectRouter{conn: conn}
}

func (r *DirectRouter) Route(key string) *Connection {
	return r.conn
}

func (r *DirectRouter) Close() error {
	return r.conn.Close()
}
