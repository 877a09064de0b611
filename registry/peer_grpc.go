package registry

import (
	"context"
	"fmt"
	"time"

	"github.com/maxpert/regnode/encoding"
	"github.com/rs/zerolog/log"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	grpcencoding "google.golang.org/grpc/encoding"
	"google.golang.org/grpc/status"
)

const (
	peerServiceName    = "regnode.Peer"
	peerSnapshotMethod = "/regnode.Peer/Snapshot"

	// msgpackCodecName is the gRPC content subtype used by peer calls
	msgpackCodecName = "msgpack"
)

func init() {
	grpcencoding.RegisterCodec(msgpackCodec{})
}

// msgpackCodec carries peer messages as msgpack instead of protobuf
type msgpackCodec struct{}

func (msgpackCodec) Marshal(v interface{}) ([]byte, error) {
	return encoding.Marshal(v)
}

func (msgpackCodec) Unmarshal(data []byte, v interface{}) error {
	return encoding.Unmarshal(data, v)
}

func (msgpackCodec) Name() string {
	return msgpackCodecName
}

// SnapshotRequest asks a peer for its instance table
type SnapshotRequest struct {
	NodeID string `msgpack:"node_id"`
}

// SnapshotResponse carries the same zstd framed snapshot served over HTTP
type SnapshotResponse struct {
	Snapshot []byte `msgpack:"snapshot"`
}

// PeerServiceServer is implemented by nodes serving snapshots over gRPC
type PeerServiceServer interface {
	Snapshot(ctx context.Context, req *SnapshotRequest) (*SnapshotResponse, error)
}

func peerSnapshotHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(SnapshotRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(PeerServiceServer).Snapshot(ctx, in)
	}

	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: peerSnapshotMethod}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(PeerServiceServer).Snapshot(ctx, req.(*SnapshotRequest))
	}
	return interceptor(ctx, in, info, handler)
}

var peerServiceDesc = grpc.ServiceDesc{
	ServiceName: peerServiceName,
	HandlerType: (*PeerServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Snapshot", Handler: peerSnapshotHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "regnode/peer",
}

// SnapshotSource supplies the instances served to syncing peers
type SnapshotSource interface {
	Instances() []InstanceInfo
}

// PeerService serves the local instance table to peers over gRPC
type PeerService struct {
	source SnapshotSource
}

// RegisterPeerService registers the snapshot service for source on s
func RegisterPeerService(s *grpc.Server, source SnapshotSource) {
	s.RegisterService(&peerServiceDesc, &PeerService{source: source})
}

// Snapshot encodes the current instance table
func (s *PeerService) Snapshot(ctx context.Context, req *SnapshotRequest) (*SnapshotResponse, error) {
	data, err := EncodeInstances(s.source.Instances())
	if err != nil {
		log.Error().Err(err).Msg("Failed to encode peer snapshot")
		return nil, status.Error(codes.Internal, "failed to encode snapshot")
	}

	log.Debug().Str("peer", req.NodeID).Int("bytes", len(data)).Msg("Served peer snapshot")
	return &SnapshotResponse{Snapshot: data}, nil
}

// GRPCPeer fetches instance snapshots from another node over gRPC
type GRPCPeer struct {
	addr    string
	nodeID  string
	timeout time.Duration
	conn    *grpc.ClientConn
}

// NewGRPCPeer creates a peer for addr (host:port). The connection is
// established lazily on the first fetch.
func NewGRPCPeer(addr, nodeID string, timeout time.Duration) (*GRPCPeer, error) {
	conn, err := grpc.NewClient(addr,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(
			grpc.CallContentSubtype(msgpackCodecName),
			grpc.MaxCallRecvMsgSize(maxSnapshotBytes),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create gRPC client for %s: %w", addr, err)
	}

	return &GRPCPeer{
		addr:    addr,
		nodeID:  nodeID,
		timeout: timeout,
		conn:    conn,
	}, nil
}

// Name returns the peer address
func (p *GRPCPeer) Name() string {
	return "grpc://" + p.addr
}

// FetchInstances pulls and decodes the peer's instance snapshot
func (p *GRPCPeer) FetchInstances(ctx context.Context) ([]InstanceInfo, error) {
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	resp := new(SnapshotResponse)
	if err := p.conn.Invoke(ctx, peerSnapshotMethod, &SnapshotRequest{NodeID: p.nodeID}, resp); err != nil {
		return nil, fmt.Errorf("failed to reach peer %s: %w", p.addr, err)
	}

	instances, err := DecodeInstances(resp.Snapshot)
	if err != nil {
		return nil, fmt.Errorf("failed to decode snapshot from %s: %w", p.addr, err)
	}
	return instances, nil
}

// Close releases the client connection
func (p *GRPCPeer) Close() error {
	return p.conn.Close()
}
