package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/ValentinKolb/dCB/lib/bucket"
	"github.com/ValentinKolb/dCB/lib/result"
	"github.com/ValentinKolb/dCB/rpc/common"
	"github.com/ValentinKolb/dCB/rpc/serializer"
	"github.com/ValentinKolb/dCB/rpc/transport"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/puzpuzpuz/xsync/v3"
)

var Logger = logger.GetLogger("rpc")

// serverShard is a bucket served by the RPC server together with the adapter
// that handles requests for it
type serverShard struct {
	Bucket  *bucket.Bucket
	Adapter IRPCServerAdapter
}

// RPCServer serves the buckets of the config over a transport.
type RPCServer struct {
	config     common.ServerConfig
	transport  transport.IRPCServerTransport
	serializer serializer.IRPCSerializer
	shards     *xsync.MapOf[uint64, serverShard]
	adapter    IRPCServerAdapter

	ctx        context.Context
	cancel     context.CancelFunc
	metricsSrv *http.Server
}

// NewRPCServer creates a new RPC server
// It takes a config, transport and serializer as parameters
//
// Usage:
//
//	s := server.NewRPCServer(
//		*config,
//		tcp.NewTCPServerTransport(),
//		serializer.NewBinarySerializer(),
//	)
//
//	if err := s.Serve(); err != nil {
//		panic(err)
//	}
func NewRPCServer(
	config common.ServerConfig,
	transport transport.IRPCServerTransport,
	serializer serializer.IRPCSerializer,
) *RPCServer {
	// https://github.com/golang/go/issues/17393
	if runtime.GOOS == "darwin" {
		signal.Ignore(syscall.Signal(0xd))
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &RPCServer{
		config:     config,
		transport:  transport,
		serializer: serializer,
		shards:     xsync.NewMapOf[uint64, serverShard](),
		adapter:    NewBucketServerAdapter(),
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Bucket returns the bucket served for a shard id.
func (s *RPCServer) Bucket(shardID uint64) (*bucket.Bucket, bool) {
	shard, ok := s.shards.Load(shardID)
	return shard.Bucket, ok
}

// Addr returns the address of the transport (nil before Start).
func (s *RPCServer) Addr() net.Addr {
	return s.transport.Addr()
}

// --------------------------------------------------------------------------
// Request handling
// --------------------------------------------------------------------------

func (s *RPCServer) registerTransportHandler() {
	s.transport.RegisterHandler(func(shardId uint64, req []byte, w transport.ResponseWriter) {
		// respond serializes a response, a response that cannot be serialized is
		// replaced by an error response so the request still ends
		respond := func(resp *common.Message) error {
			data, err := s.serializer.Serialize(*resp)
			if err != nil {
				Logger.Errorf("failed to serialize %s response: %v", resp.MsgType, err)
				data, err = s.serializer.Serialize(*common.NewErrorResponse(result.StatusInternalError,
					fmt.Sprintf("failed to serialize response: %s", err)))
				if err != nil {
					return err
				}
			}
			return w(data)
		}

		// Get appropriate shard
		shard, ok := s.shards.Load(shardId)
		if !ok {
			requestErrors.Inc()
			_ = respond(common.NewErrorResponse(result.StatusNoMatchingServer, fmt.Sprintf("bucket %d not found", shardId)))
			return
		}

		// Decode the request
		var msg common.Message
		if err := s.serializer.Deserialize(req, &msg); err != nil {
			requestErrors.Inc()
			_ = respond(common.NewErrorResponse(result.StatusInvalidArgs, fmt.Sprintf("failed to deserialize request: %s", err)))
			return
		}

		start := time.Now()
		requestCounter(msg.MsgType).Inc()
		shard.Adapter.Handle(s.ctx, &msg, shard.Bucket, respond)
		requestDuration(msg.MsgType).UpdateDuration(start)
	})
}

// --------------------------------------------------------------------------
// Lifecycle
// --------------------------------------------------------------------------

func (s *RPCServer) init() error {
	if len(s.config.Shards) == 0 {
		return fmt.Errorf("no buckets configured")
	}

	for _, shardConfig := range s.config.Shards {
		b, err := bucket.New(bucket.Options{
			Name:           shardConfig.Name,
			Replicas:       s.config.Replicas,
			PersistDelay:   s.config.PersistDelay(),
			ReplicateDelay: s.config.ReplicateDelay(),
			MaxValueSize:   s.config.MaxValueSize,
		})
		if err != nil {
			return fmt.Errorf("failed to create bucket %d: %w", shardConfig.ShardID, err)
		}
		if _, loaded := s.shards.LoadOrStore(shardConfig.ShardID, serverShard{Bucket: b, Adapter: s.adapter}); loaded {
			return fmt.Errorf("bucket %d configured twice", shardConfig.ShardID)
		}
		Logger.Infof("created bucket %q for shard %d", shardConfig.Name, shardConfig.ShardID)
	}

	// Configure the transport layer
	s.registerTransportHandler()
	return nil
}

// Start creates the buckets and starts the transport and the metrics endpoint.
func (s *RPCServer) Start() error {
	Logger.Infof(s.config.String())

	if err := s.init(); err != nil {
		return err
	}
	if err := s.transport.Listen(s.config); err != nil {
		return err
	}

	if s.config.MetricsEndpoint != "" {
		s.metricsSrv = &http.Server{
			Addr:              s.config.MetricsEndpoint,
			Handler:           metricsHandler(),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			Logger.Infof("serving metrics on %s/metrics", s.config.MetricsEndpoint)
			if err := s.metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				Logger.Errorf("metrics endpoint failed: %v", err)
			}
		}()
	}

	Logger.Infof("dCB server started")
	return nil
}

// Serve starts the server and blocks until SIGINT or SIGTERM is received.
func (s *RPCServer) Serve() error {
	if err := s.Start(); err != nil {
		return err
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	Logger.Infof("received %s, shutting down", <-sig)

	return s.Close()
}

// Close cancels running durability checks, waits for their responses and stops
// the transport.
func (s *RPCServer) Close() error {
	s.cancel()
	// cancelled checks still answer their clients
	s.adapter.Wait()
	err := s.transport.Close()

	if s.metricsSrv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		err = errors.Join(err, s.metricsSrv.Shutdown(ctx))
	}
	return err
}
