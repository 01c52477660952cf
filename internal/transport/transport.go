package transport

import (
	"io"
)

// ConnIO wraps ReadWriteCloseDoner to provide a type that can be used in the connection transport layer.
type ConnIO struct {
	_     struct{}
	Inner io.ReadWriteCloser
}

func (q *ConnIO) Read(p []byte) (n int, err error) {
	return q.Inner.Read(p)
}

func (q *ConnIO) Write(p []byte) (n int, err error) {
	return q.Inner.Write(p)
}

func (q *ConnIO) Close() error {
	return q.Inner.Close()
}

func NewConnIO(inner io.ReadWriteCloser) *ConnIO {
	return &ConnIO{Inner: inner}
}
