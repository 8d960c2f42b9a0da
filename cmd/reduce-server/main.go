// Command reduce-server is an example embedder: it wires a sample summing
// Reducer into server.Server and runs it to completion, using
// github.com/jessevdk/go-flags for its command-line surface (mirrored on
// estuary-flow's sql-driver/main.go).
package main

import (
	"context"
	"fmt"
	"os"
	"strconv"

	flags "github.com/jessevdk/go-flags"
	log "github.com/sirupsen/logrus"

	"github.com/yhl25/numaflow-go/apis/reduce"
	"github.com/yhl25/numaflow-go/server"
)

type options struct {
	SocketFile     string `long:"socket-file" optional:"true" default:"/var/run/numaflow/reduce.sock" description:"UDS path the server listens on"`
	ServerInfoFile string `long:"server-info-file" optional:"true" default:"/var/run/numaflow/reducer-server-info" description:"path of the handshake descriptor written at startup"`
	MaxMessageSize int    `long:"max-message-size" optional:"true" default:"67108864" description:"gRPC message size ceiling, in bytes"`
}

func main() {
	var opts options
	if _, err := flags.NewParser(&opts, flags.Default).Parse(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	srv := server.New(reduce.ReducerFactoryFunc(func() reduce.Reducer { return &sumReducer{} })).
		WithSocketFile(opts.SocketFile).
		WithServerInfoFile(opts.ServerInfoFile).
		WithMaxMessageSize(opts.MaxMessageSize).
		WithLogger(log.StandardLogger())

	if err := srv.Start(context.Background()); err != nil {
		log.WithError(err).Fatal("reduce server exited with an error")
	}
}

// sumReducer sums the integer value of every record it receives for its
// key-tuple and emits a single result, mirroring the Sum test fixture from
// the Rust original this server's protocol is drawn from.
type sumReducer struct{}

func (*sumReducer) Reduce(
	_ context.Context, _ reduce.Keys, input <-chan reduce.InRecord, _ *reduce.Metadata,
) []reduce.OutMessage {
	var sum int

	for rec := range input {
		n, err := strconv.Atoi(string(rec.Value))
		if err != nil {
			panic(fmt.Sprintf("sumReducer: non-integer value %q: %v", rec.Value, err))
		}
		sum += n
	}

	return []reduce.OutMessage{{Value: []byte(strconv.Itoa(sum))}}
}
