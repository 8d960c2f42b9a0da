package server

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/yhl25/numaflow-go/apis/reduce"
	"github.com/yhl25/numaflow-go/internal/wire"
	"github.com/yhl25/numaflow-go/pb"
)

// sumReducer mirrors cmd/reduce-server's fixture: it sums the integer value
// of every record for its key-tuple.
type sumReducer struct{}

func (*sumReducer) Reduce(
	_ context.Context, _ reduce.Keys, input <-chan reduce.InRecord, _ *reduce.Metadata,
) []reduce.OutMessage {
	var sum int
	for rec := range input {
		n, _ := strconv.Atoi(string(rec.Value))
		sum += n
	}

	return []reduce.OutMessage{{Value: []byte(strconv.Itoa(sum))}}
}

func startTestServer(t *testing.T) string {
	t.Helper()

	dir := t.TempDir()
	socketFile := filepath.Join(dir, "reduce.sock")
	serverInfoFile := filepath.Join(dir, "server-info")

	srv := New(reduce.ReducerFactoryFunc(func() reduce.Reducer { return &sumReducer{} })).
		WithSocketFile(socketFile).
		WithServerInfoFile(serverInfoFile)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for {
		if _, err := os.Stat(socketFile); err == nil {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("timed out waiting for socket file to appear")
		}
		time.Sleep(10 * time.Millisecond)
	}

	return socketFile
}

func dialTestServer(t *testing.T, socketFile string) pb.ReduceServiceClient {
	t.Helper()

	conn, err := grpc.DialContext(
		context.Background(),
		"unix://"+socketFile,
		grpc.WithBlock(),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(pb.CodecName)),
	)
	if err != nil {
		t.Fatalf("dialing test server: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })

	return pb.NewReduceServiceClient(conn)
}

func TestServerIsReady(t *testing.T) {
	socketFile := startTestServer(t)
	client := dialTestServer(t, socketFile)

	resp, err := client.IsReady(context.Background(), &struct{}{})
	if err != nil {
		t.Fatalf("IsReady: %v", err)
	}
	if !resp.Ready {
		t.Error("expected Ready to be true")
	}
}

func TestServerReduceFnSumsTwoKeys(t *testing.T) {
	socketFile := startTestServer(t)
	client := dialTestServer(t, socketFile)

	stream, err := client.ReduceFn(context.Background())
	if err != nil {
		t.Fatalf("opening ReduceFn stream: %v", err)
	}

	window := &pb.Window{Start: wire.TimeToPB(time.Unix(0, 0)), End: wire.TimeToPB(time.Unix(60, 0))}
	op := &pb.WindowOperation{Windows: []*pb.Window{window}}

	records := []struct {
		keys  []string
		value string
	}{
		{[]string{"even"}, "2"},
		{[]string{"odd"}, "1"},
		{[]string{"even"}, "4"},
		{[]string{"odd"}, "3"},
	}
	for _, r := range records {
		req := &pb.ReduceRequest{
			Payload:   &pb.Payload{Keys: r.keys, Value: []byte(r.value)},
			Operation: op,
		}
		if err := stream.Send(req); err != nil {
			t.Fatalf("Send: %v", err)
		}
	}
	if err := stream.CloseSend(); err != nil {
		t.Fatalf("CloseSend: %v", err)
	}

	results := map[string]string{}
	sawEOF := false
	for {
		resp, err := stream.Recv()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("Recv: %v", err)
		}
		if resp.EOF {
			sawEOF = true

			continue
		}
		results[resp.Result.Keys[0]] = string(resp.Result.Value)
	}

	if !sawEOF {
		t.Error("expected an end-of-window marker")
	}
	if results["even"] != "6" {
		t.Errorf("even sum = %q, want 6", results["even"])
	}
	if results["odd"] != "4" {
		t.Errorf("odd sum = %q, want 4", results["odd"])
	}
}
