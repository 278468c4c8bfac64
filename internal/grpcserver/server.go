package grpcserver

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"mtgdata/internal/cards"
	"mtgdata/internal/catalog"
	"mtgdata/internal/metrics"
)

type Server struct {
	Cards *cards.Service
	log   zerolog.Logger
}

func NewServer(svc *cards.Service, log zerolog.Logger) *Server {
	return &Server{Cards: svc, log: log}
}

func (s *Server) GetMetadata(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	return s.reply(s.Cards.Metadata())
}

func (s *Server) ListSets(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	include := field(req, "includeOnlineOnly").GetBoolValue()
	sets := s.Cards.AvailableSets(!include)
	if len(sets) == 0 {
		return nil, status.Error(codes.NotFound, "no sets found")
	}
	items := make([]any, 0, len(sets))
	for _, set := range sets {
		items = append(items, set.Listing())
	}
	return s.reply(map[string]any{"sets": items})
}

func (s *Server) GetSet(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	code := strings.TrimSpace(field(req, "code").GetStringValue())
	if code == "" {
		return nil, status.Error(codes.InvalidArgument, "code required")
	}
	set, ok := s.Cards.SetByCode(code)
	if !ok {
		return nil, status.Errorf(codes.NotFound, "set %s not found", code)
	}
	return s.reply(set)
}

func (s *Server) ListCardsBySet(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	code := strings.TrimSpace(field(req, "code").GetStringValue())
	if code == "" {
		return nil, status.Error(codes.InvalidArgument, "code required")
	}
	return s.reply(map[string]any{"cards": s.Cards.CardsBySetCode(code)})
}

func (s *Server) GetCardsByUUID(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	values := field(req, "uuids").GetListValue().GetValues()
	if len(values) == 0 {
		return nil, status.Error(codes.InvalidArgument, "uuids required")
	}
	uuids := make([]string, 0, len(values))
	for _, v := range values {
		uuids = append(uuids, v.GetStringValue())
	}
	found, err := s.Cards.CardsByUUID(ctx, uuids)
	if err != nil {
		return nil, s.toStatus(err)
	}
	return s.reply(map[string]any{"cards": found})
}

func (s *Server) SearchCards(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	q := field(req, "query").GetStringValue()
	limit := int(field(req, "limit").GetNumberValue())
	found, err := s.Cards.SearchByName(ctx, q, limit)
	if err != nil {
		return nil, s.toStatus(err)
	}
	return s.reply(map[string]any{
		"query": strings.TrimSpace(q),
		"limit": cards.ClampLimit(limit),
		"cards": found,
	})
}

func field(req *structpb.Struct, name string) *structpb.Value {
	return req.GetFields()[name]
}

// reply converts v through its JSON form so that cards and sets keep the exact
// shape they have over HTTP.
func (s *Server) reply(v any) (*structpb.Struct, error) {
	b, err := json.Marshal(v)
	if err != nil {
		s.log.Error().Err(err).Msg("marshal grpc reply")
		return nil, status.Error(codes.Internal, "encode failed")
	}
	out := &structpb.Struct{}
	if err := out.UnmarshalJSON(b); err != nil {
		s.log.Error().Err(err).Msg("convert grpc reply")
		return nil, status.Error(codes.Internal, "encode failed")
	}
	return out, nil
}

func (s *Server) toStatus(err error) error {
	switch {
	case errors.Is(err, cards.ErrInvalidArgument):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, cards.ErrNotFound):
		return status.Error(codes.NotFound, err.Error())
	default:
		s.log.Error().Err(err).Msg("grpc request failed")
		return status.Error(codes.Internal, "internal error")
	}
}

// UnaryInterceptor logs every call and counts it by method and status code.
func UnaryInterceptor(log zerolog.Logger, m *metrics.Metrics) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		code := status.Code(err)
		m.RecordGrpcRequest(info.FullMethod, code.String())

		ev := log.Info()
		if code == codes.Internal || code == codes.Unknown {
			ev = log.Error().Err(err)
		}
		ev.Str("method", info.FullMethod).
			Str("code", code.String()).
			Dur("latency", time.Since(start)).
			Msg("grpc request")
		return resp, err
	}
}

// HealthHook marks the card service SERVING once a catalog load succeeds.
// A failed reload keeps the previous catalog and therefore the status.
func HealthHook(h *health.Server) func(catalog.LoadResult) {
	return func(res catalog.LoadResult) {
		if res.Err == nil {
			h.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
			h.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
		}
	}
}
