// numaflow-go is a reduce UDF server for a keyed windowed reduce
// stream-processing platform: it demultiplexes one gRPC call's inbound
// records by key-tuple, runs a user-supplied Reducer concurrently per key,
// and streams the results back, closing deterministically at end-of-window.
// This top-level package is just a stub.
// For main functionality, see:
//   - For the embedder contract: [github.com/yhl25/numaflow-go/apis/reduce]
//   - For the error taxonomy: [github.com/yhl25/numaflow-go/apis/reduceerrors]
//   - For the per-key reducer lifecycle: [github.com/yhl25/numaflow-go/task]
//   - For the per-call key registry: [github.com/yhl25/numaflow-go/taskset]
//   - For the gRPC transport: [github.com/yhl25/numaflow-go/server]
//   - For an example embedder: [github.com/yhl25/numaflow-go/cmd/reduce-server]
package numaflowreduce
