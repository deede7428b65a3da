package socket

import "io"

// Pipe returns two connected in-process Connections, analogous to
// net.Pipe, for wiring an Adapter to a fake remote agent process in
// tests without a real socket.
func Pipe() (a, b Connection) {
	ab := make(chan Message, 64)
	ba := make(chan Message, 64)
	return &pipeEnd{send: ab, recv: ba}, &pipeEnd{send: ba, recv: ab}
}

type pipeEnd struct {
	send chan<- Message
	recv <-chan Message
}

func (p *pipeEnd) Send(msg Message) error {
	p.send <- msg
	return nil
}

func (p *pipeEnd) Recv() (Message, error) {
	msg, ok := <-p.recv
	if !ok {
		return Message{}, io.EOF
	}
	return msg, nil
}

func (p *pipeEnd) Close() error {
	return nil
}
