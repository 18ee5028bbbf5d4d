package server

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/ChuechTeam/CardLab-sub000/internal/cardpack"
	"github.com/ChuechTeam/CardLab-sub000/internal/match"
	"github.com/ChuechTeam/CardLab-sub000/internal/storage"
)

// AdminServiceName is the full name of the admin service. Its messages are
// google.protobuf.Struct values so no generated code is needed.
const AdminServiceName = "cardlab.admin.v1.DuelAdmin"

// AdminServer lets operators create, inspect and stop matches.
type AdminServer struct {
	matches *match.Manager
	store   storage.Store
	cards   *cardpack.Database
	logger  *zap.Logger
}

// NewAdminServer creates the admin service. store may be nil.
func NewAdminServer(matches *match.Manager, store storage.Store, cards *cardpack.Database, logger *zap.Logger) *AdminServer {
	if store == nil {
		store = storage.Nop{}
	}
	return &AdminServer{matches: matches, store: store, cards: cards, logger: logger}
}

// ListMatches returns every hosted match.
func (s *AdminServer) ListMatches(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	snaps := s.matches.ListMatches()
	list := make([]any, 0, len(snaps))
	for _, snap := range snaps {
		list = append(list, matchToMap(snap))
	}
	return newStruct(map[string]any{"matches": list})
}

// GetMatch returns one match. Request: {matchId}.
func (s *AdminServer) GetMatch(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	id := stringField(req, "matchId")
	if id == "" {
		return nil, status.Error(codes.InvalidArgument, "matchId is required")
	}
	mt, ok := s.matches.GetMatch(id)
	if !ok {
		return nil, status.Error(codes.NotFound, "match not found")
	}
	return newStruct(matchToMap(mt.Snapshot()))
}

// CreateMatch hosts a new duel. Request: {playerNames, decks, seed}, all
// optional. The reply carries the join token of each seat.
func (s *AdminServer) CreateMatch(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	var cr match.CreateRequest
	names := listField(req, "playerNames")
	decks := listField(req, "decks")
	for i := 0; i < 2; i++ {
		if i < len(names) {
			cr.PlayerNames[i] = names[i]
		}
		if i < len(decks) {
			cr.Decks[i] = decks[i]
		}
	}
	if v, ok := req.GetFields()["seed"]; ok {
		seed := int64(v.GetNumberValue())
		cr.Seed = &seed
	}

	mt, tokens, err := s.matches.CreateMatch(cr)
	switch {
	case errors.Is(err, match.ErrTooManyMatches):
		return nil, status.Error(codes.ResourceExhausted, err.Error())
	case errors.Is(err, cardpack.ErrUnknownDeck):
		return nil, status.Error(codes.InvalidArgument, err.Error())
	case err != nil:
		return nil, status.Errorf(codes.Internal, "create match: %v", err)
	}
	return newStruct(map[string]any{
		"matchId": mt.ID,
		"seed":    float64(mt.Seed),
		"tokens":  []any{tokens[0], tokens[1]},
	})
}

// RemoveMatch stops a match. Request: {matchId}.
func (s *AdminServer) RemoveMatch(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	id := stringField(req, "matchId")
	if err := s.matches.RemoveMatch(id); err != nil {
		if errors.Is(err, match.ErrMatchNotFound) {
			return nil, status.Error(codes.NotFound, err.Error())
		}
		return nil, status.Error(codes.Internal, err.Error())
	}
	return &structpb.Struct{}, nil
}

// RecentResults lists stored results, newest first. Request: {limit}.
func (s *AdminServer) RecentResults(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	limit := int(req.GetFields()["limit"].GetNumberValue())
	if limit <= 0 || limit > 500 {
		limit = 20
	}
	results, err := s.store.RecentResults(ctx, limit)
	if err != nil {
		return nil, status.Errorf(codes.Unavailable, "load results: %v", err)
	}
	list := make([]any, 0, len(results))
	for _, r := range results {
		m := map[string]any{
			"duelId":      r.DuelID,
			"startedAt":   r.StartedAt.Format(time.RFC3339),
			"endedAt":     r.EndedAt.Format(time.RFC3339),
			"turns":       r.Turns,
			"iterations":  r.Iterations,
			"playerNames": []any{r.PlayerNames[0], r.PlayerNames[1]},
			"checksum":    r.Checksum,
		}
		if r.Winner != nil {
			m["winner"] = *r.Winner
		}
		list = append(list, m)
	}
	return newStruct(map[string]any{"results": list})
}

// ListPacks lists the loaded packs and those imported in storage.
func (s *AdminServer) ListPacks(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	loaded := []any{}
	if s.cards != nil {
		for _, p := range s.cards.Packs() {
			decks := make([]any, 0, len(p.Decks))
			for name := range p.Decks {
				decks = append(decks, name)
			}
			loaded = append(loaded, map[string]any{
				"id":    p.ID.String(),
				"name":  p.Name,
				"cards": len(p.Cards),
				"decks": decks,
			})
		}
	}

	records, err := s.store.Packs(ctx)
	if err != nil {
		return nil, status.Errorf(codes.Unavailable, "load packs: %v", err)
	}
	imported := make([]any, 0, len(records))
	for _, r := range records {
		imported = append(imported, map[string]any{
			"id":         r.PackID,
			"name":       r.Name,
			"cards":      r.Cards,
			"importedAt": r.ImportedAt.Format(time.RFC3339),
		})
	}
	return newStruct(map[string]any{"loaded": loaded, "imported": imported})
}

func matchToMap(snap match.Snapshot) map[string]any {
	m := map[string]any{
		"id":          snap.ID,
		"state":       snap.State.String(),
		"seed":        float64(snap.Seed),
		"playerNames": []any{snap.PlayerNames[0], snap.PlayerNames[1]},
		"joined":      []any{snap.Joined[0], snap.Joined[1]},
		"connected":   []any{snap.Connected[0], snap.Connected[1]},
		"turn":        snap.Turn,
		"iteration":   snap.Iteration,
		"createTime":  snap.CreateTime.Format(time.RFC3339),
	}
	if snap.Winner != nil {
		m["winner"] = int(*snap.Winner)
	}
	if snap.EndTime != nil {
		m["endTime"] = snap.EndTime.Format(time.RFC3339)
	}
	return m
}

func newStruct(m map[string]any) (*structpb.Struct, error) {
	st, err := structpb.NewStruct(m)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode reply: %v", err)
	}
	return st, nil
}

func stringField(st *structpb.Struct, key string) string {
	return st.GetFields()[key].GetStringValue()
}

func listField(st *structpb.Struct, key string) []string {
	vals := st.GetFields()[key].GetListValue().GetValues()
	out := make([]string, 0, len(vals))
	for _, v := range vals {
		out = append(out, v.GetStringValue())
	}
	return out
}

type adminService interface {
	ListMatches(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetMatch(context.Context, *structpb.Struct) (*structpb.Struct, error)
	CreateMatch(context.Context, *structpb.Struct) (*structpb.Struct, error)
	RemoveMatch(context.Context, *structpb.Struct) (*structpb.Struct, error)
	RecentResults(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListPacks(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

type adminMethod func(adminService, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unaryMethod(name string, call adminMethod) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(adminService), ctx, in)
			}
			info := &grpc.UnaryServerInfo{
				Server:     srv,
				FullMethod: "/" + AdminServiceName + "/" + name,
			}
			return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
				return call(srv.(adminService), ctx, req.(*structpb.Struct))
			})
		},
	}
}

var adminServiceDesc = grpc.ServiceDesc{
	ServiceName: AdminServiceName,
	HandlerType: (*adminService)(nil),
	Methods: []grpc.MethodDesc{
		unaryMethod("ListMatches", adminService.ListMatches),
		unaryMethod("GetMatch", adminService.GetMatch),
		unaryMethod("CreateMatch", adminService.CreateMatch),
		unaryMethod("RemoveMatch", adminService.RemoveMatch),
		unaryMethod("RecentResults", adminService.RecentResults),
		unaryMethod("ListPacks", adminService.ListPacks),
	},
	Metadata: "cardlab/admin/v1/admin.proto",
}

// RegisterAdminServer registers the admin service on s.
func RegisterAdminServer(s grpc.ServiceRegistrar, srv *AdminServer) {
	s.RegisterService(&adminServiceDesc, srv)
}

// AdminClient calls the admin service.
type AdminClient struct {
	cc grpc.ClientConnInterface
}

func NewAdminClient(cc grpc.ClientConnInterface) *AdminClient {
	return &AdminClient{cc: cc}
}

// Call invokes method with req as its request fields.
func (c *AdminClient) Call(ctx context.Context, method string, req map[string]any, opts ...grpc.CallOption) (*structpb.Struct, error) {
	in, err := structpb.NewStruct(req)
	if err != nil {
		return nil, err
	}
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, "/"+AdminServiceName+"/"+method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
