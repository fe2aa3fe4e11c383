package localbus

import (
	"encoding/json"
	"fmt"
	"log"
	"net"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// maxDatagram bounds a single bus message on the wire.
const maxDatagram = 4096

// SocketBus implements Bus across processes on one workstation. Each
// process binds a Unix datagram socket inside the channel directory;
// Broadcast writes the message to every peer socket in that directory and
// delivers it locally. Stale sockets left by crashed processes are removed
// on the first failed send.
type SocketBus struct {
	dir  string
	path string
	conn *net.UnixConn
	mem  *MemoryBus
	done chan struct{}
}

// OpenChannel joins the named same-host channel. The channel lives under
// dir (typically /run or os.TempDir()); every process that opens the same
// name sees every broadcast.
func OpenChannel(dir, name string) (*SocketBus, error) {
	chDir := filepath.Join(dir, name)
	if err := os.MkdirAll(chDir, 0o777); err != nil {
		return nil, fmt.Errorf("error creating channel directory: %v", err)
	}

	path := filepath.Join(chDir, uuid.NewString()+".sock")
	addr := &net.UnixAddr{Name: path, Net: "unixgram"}
	conn, err := net.ListenUnixgram("unixgram", addr)
	if err != nil {
		return nil, fmt.Errorf("error binding bus socket: %v", err)
	}

	b := &SocketBus{
		dir:  chDir,
		path: path,
		conn: conn,
		mem:  NewMemoryBus(),
		done: make(chan struct{}),
	}
	go b.readLoop()
	return b, nil
}

func (b *SocketBus) readLoop() {
	buf := make([]byte, maxDatagram)
	for {
		n, _, err := b.conn.ReadFromUnix(buf)
		if err != nil {
			select {
			case <-b.done:
				return
			default:
			}
			log.Printf("Error reading bus socket: %v", err)
			return
		}
		var msg Message
		if err := json.Unmarshal(buf[:n], &msg); err != nil {
			log.Printf("Error decoding bus message: %v", err)
			continue
		}
		b.mem.Broadcast(msg)
	}
}

// Broadcast sends msg to every peer socket in the channel directory and to
// local subscriptions. Per-peer send errors are non-fatal.
func (b *SocketBus) Broadcast(msg Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("error encoding bus message: %v", err)
	}

	entries, err := os.ReadDir(b.dir)
	if err != nil {
		return fmt.Errorf("error listing channel directory: %v", err)
	}
	for _, entry := range entries {
		if !strings.HasSuffix(entry.Name(), ".sock") {
			continue
		}
		peer := filepath.Join(b.dir, entry.Name())
		if peer == b.path {
			continue
		}
		if err := sendDatagram(peer, data); err != nil {
			// A peer that cannot be reached is gone; clean up its socket.
			os.Remove(peer)
		}
	}

	return b.mem.Broadcast(msg)
}

func sendDatagram(path string, data []byte) error {
	conn, err := net.DialUnix("unixgram", nil, &net.UnixAddr{Name: path, Net: "unixgram"})
	if err != nil {
		return err
	}
	defer conn.Close()
	_, err = conn.Write(data)
	return err
}

func (b *SocketBus) Subscribe() *Subscription {
	return b.mem.Subscribe()
}

// Close releases the socket and all subscriptions.
func (b *SocketBus) Close() error {
	select {
	case <-b.done:
		return nil
	default:
	}
	close(b.done)
	b.conn.Close()
	os.Remove(b.path)
	return b.mem.Close()
}
