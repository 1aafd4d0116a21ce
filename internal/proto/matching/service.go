package matchingpb

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
)

const ServiceName = "matching.v1.MatchingService"

// FullMethod returns the gRPC method path, e.g. /matching.v1.MatchingService/SubmitAction.
func FullMethod(method string) string {
	return "/" + ServiceName + "/" + method
}

// MatchingServiceServer is the server API for matching.v1.MatchingService.
type MatchingServiceServer interface {
	SubmitAction(context.Context, *SubmitActionRequest) (*SubmitActionResponse, error)
	GetUserMatches(context.Context, *UserRequest) (*UserMatchesResponse, error)
	GetUserActivity(context.Context, *UserRequest) (*UserActivityResponse, error)
	SendMessage(context.Context, *SendMessageRequest) (*Message, error)
	Unmatch(context.Context, *ConversationRequest) (*Conversation, error)
	MarkRead(context.Context, *ConversationRequest) (*MarkReadResponse, error)
	ArchiveConversation(context.Context, *ConversationRequest) (*Conversation, error)
	UnarchiveConversation(context.Context, *ConversationRequest) (*Conversation, error)
	ListConversations(context.Context, *ListConversationsRequest) (*ListConversationsResponse, error)
	ListMessages(context.Context, *ListMessagesRequest) (*ListMessagesResponse, error)
	CreateMatchSet(context.Context, *CreateMatchSetRequest) (*MatchSet, error)
	GetMatchSet(context.Context, *GetMatchSetRequest) (*MatchSet, error)
	RecordViewTime(context.Context, *RecordViewTimeRequest) (*MatchSet, error)
	ListLikedYou(context.Context, *ListLikedYouRequest) (*ListLikedYouResponse, error)
	CountLikedYou(context.Context, *UserRequest) (*CountResponse, error)
	CountUnread(context.Context, *UserRequest) (*CountResponse, error)
	BlockUser(context.Context, *BlockUserRequest) (*emptypb.Empty, error)
	UnblockUser(context.Context, *UnblockUserRequest) (*emptypb.Empty, error)
	ReportMatch(context.Context, *ReportMatchRequest) (*Conversation, error)
	ReconcileUser(context.Context, *UserRequest) (*ReconcileUserResponse, error)
}

// UnimplementedMatchingServiceServer answers Unimplemented for every method.
// Embed it to stay forward compatible.
type UnimplementedMatchingServiceServer struct{}

func unimplemented(method string) error {
	return status.Errorf(codes.Unimplemented, "method %s not implemented", method)
}

func (UnimplementedMatchingServiceServer) SubmitAction(context.Context, *SubmitActionRequest) (*SubmitActionResponse, error) {
	return nil, unimplemented("SubmitAction")
}
func (UnimplementedMatchingServiceServer) GetUserMatches(context.Context, *UserRequest) (*UserMatchesResponse, error) {
	return nil, unimplemented("GetUserMatches")
}
func (UnimplementedMatchingServiceServer) GetUserActivity(context.Context, *UserRequest) (*UserActivityResponse, error) {
	return nil, unimplemented("GetUserActivity")
}
func (UnimplementedMatchingServiceServer) SendMessage(context.Context, *SendMessageRequest) (*Message, error) {
	return nil, unimplemented("SendMessage")
}
func (UnimplementedMatchingServiceServer) Unmatch(context.Context, *ConversationRequest) (*Conversation, error) {
	return nil, unimplemented("Unmatch")
}
func (UnimplementedMatchingServiceServer) MarkRead(context.Context, *ConversationRequest) (*MarkReadResponse, error) {
	return nil, unimplemented("MarkRead")
}
func (UnimplementedMatchingServiceServer) ArchiveConversation(context.Context, *ConversationRequest) (*Conversation, error) {
	return nil, unimplemented("ArchiveConversation")
}
func (UnimplementedMatchingServiceServer) UnarchiveConversation(context.Context, *ConversationRequest) (*Conversation, error) {
	return nil, unimplemented("UnarchiveConversation")
}
func (UnimplementedMatchingServiceServer) ListConversations(context.Context, *ListConversationsRequest) (*ListConversationsResponse, error) {
	return nil, unimplemented("ListConversations")
}
func (UnimplementedMatchingServiceServer) ListMessages(context.Context, *ListMessagesRequest) (*ListMessagesResponse, error) {
	return nil, unimplemented("ListMessages")
}
func (UnimplementedMatchingServiceServer) CreateMatchSet(context.Context, *CreateMatchSetRequest) (*MatchSet, error) {
	return nil, unimplemented("CreateMatchSet")
}
func (UnimplementedMatchingServiceServer) GetMatchSet(context.Context, *GetMatchSetRequest) (*MatchSet, error) {
	return nil, unimplemented("GetMatchSet")
}
func (UnimplementedMatchingServiceServer) RecordViewTime(context.Context, *RecordViewTimeRequest) (*MatchSet, error) {
	return nil, unimplemented("RecordViewTime")
}
func (UnimplementedMatchingServiceServer) ListLikedYou(context.Context, *ListLikedYouRequest) (*ListLikedYouResponse, error) {
	return nil, unimplemented("ListLikedYou")
}
func (UnimplementedMatchingServiceServer) CountLikedYou(context.Context, *UserRequest) (*CountResponse, error) {
	return nil, unimplemented("CountLikedYou")
}
func (UnimplementedMatchingServiceServer) CountUnread(context.Context, *UserRequest) (*CountResponse, error) {
	return nil, unimplemented("CountUnread")
}
func (UnimplementedMatchingServiceServer) BlockUser(context.Context, *BlockUserRequest) (*emptypb.Empty, error) {
	return nil, unimplemented("BlockUser")
}
func (UnimplementedMatchingServiceServer) UnblockUser(context.Context, *UnblockUserRequest) (*emptypb.Empty, error) {
	return nil, unimplemented("UnblockUser")
}
func (UnimplementedMatchingServiceServer) ReportMatch(context.Context, *ReportMatchRequest) (*Conversation, error) {
	return nil, unimplemented("ReportMatch")
}
func (UnimplementedMatchingServiceServer) ReconcileUser(context.Context, *UserRequest) (*ReconcileUserResponse, error) {
	return nil, unimplemented("ReconcileUser")
}

func unary[Req, Resp any](name string, call func(MatchingServiceServer, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(MatchingServiceServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: FullMethod(name)}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(MatchingServiceServer), ctx, req.(*Req))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

// MatchingService_ServiceDesc is the grpc.ServiceDesc for matching.v1.MatchingService.
var MatchingService_ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*MatchingServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("SubmitAction", MatchingServiceServer.SubmitAction),
		unary("GetUserMatches", MatchingServiceServer.GetUserMatches),
		unary("GetUserActivity", MatchingServiceServer.GetUserActivity),
		unary("SendMessage", MatchingServiceServer.SendMessage),
		unary("Unmatch", MatchingServiceServer.Unmatch),
		unary("MarkRead", MatchingServiceServer.MarkRead),
		unary("ArchiveConversation", MatchingServiceServer.ArchiveConversation),
		unary("UnarchiveConversation", MatchingServiceServer.UnarchiveConversation),
		unary("ListConversations", MatchingServiceServer.ListConversations),
		unary("ListMessages", MatchingServiceServer.ListMessages),
		unary("CreateMatchSet", MatchingServiceServer.CreateMatchSet),
		unary("GetMatchSet", MatchingServiceServer.GetMatchSet),
		unary("RecordViewTime", MatchingServiceServer.RecordViewTime),
		unary("ListLikedYou", MatchingServiceServer.ListLikedYou),
		unary("CountLikedYou", MatchingServiceServer.CountLikedYou),
		unary("CountUnread", MatchingServiceServer.CountUnread),
		unary("BlockUser", MatchingServiceServer.BlockUser),
		unary("UnblockUser", MatchingServiceServer.UnblockUser),
		unary("ReportMatch", MatchingServiceServer.ReportMatch),
		unary("ReconcileUser", MatchingServiceServer.ReconcileUser),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "matching.proto",
}

func RegisterMatchingServiceServer(s grpc.ServiceRegistrar, srv MatchingServiceServer) {
	s.RegisterService(&MatchingService_ServiceDesc, srv)
}

// MatchingServiceClient calls matching.v1.MatchingService over the JSON codec.
type MatchingServiceClient struct {
	cc grpc.ClientConnInterface
}

func NewMatchingServiceClient(cc grpc.ClientConnInterface) *MatchingServiceClient {
	return &MatchingServiceClient{cc: cc}
}

func invoke[Resp any](ctx context.Context, cc grpc.ClientConnInterface, method string, in any, opts []grpc.CallOption) (*Resp, error) {
	out := new(Resp)
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	if err := cc.Invoke(ctx, FullMethod(method), in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *MatchingServiceClient) SubmitAction(ctx context.Context, in *SubmitActionRequest, opts ...grpc.CallOption) (*SubmitActionResponse, error) {
	return invoke[SubmitActionResponse](ctx, c.cc, "SubmitAction", in, opts)
}
func (c *MatchingServiceClient) GetUserMatches(ctx context.Context, in *UserRequest, opts ...grpc.CallOption) (*UserMatchesResponse, error) {
	return invoke[UserMatchesResponse](ctx, c.cc, "GetUserMatches", in, opts)
}
func (c *MatchingServiceClient) GetUserActivity(ctx context.Context, in *UserRequest, opts ...grpc.CallOption) (*UserActivityResponse, error) {
	return invoke[UserActivityResponse](ctx, c.cc, "GetUserActivity", in, opts)
}
func (c *MatchingServiceClient) SendMessage(ctx context.Context, in *SendMessageRequest, opts ...grpc.CallOption) (*Message, error) {
	return invoke[Message](ctx, c.cc, "SendMessage", in, opts)
}
func (c *MatchingServiceClient) Unmatch(ctx context.Context, in *ConversationRequest, opts ...grpc.CallOption) (*Conversation, error) {
	return invoke[Conversation](ctx, c.cc, "Unmatch", in, opts)
}
func (c *MatchingServiceClient) MarkRead(ctx context.Context, in *ConversationRequest, opts ...grpc.CallOption) (*MarkReadResponse, error) {
	return invoke[MarkReadResponse](ctx, c.cc, "MarkRead", in, opts)
}
func (c *MatchingServiceClient) ArchiveConversation(ctx context.Context, in *ConversationRequest, opts ...grpc.CallOption) (*Conversation, error) {
	return invoke[Conversation](ctx, c.cc, "ArchiveConversation", in, opts)
}
func (c *MatchingServiceClient) UnarchiveConversation(ctx context.Context, in *ConversationRequest, opts ...grpc.CallOption) (*Conversation, error) {
	return invoke[Conversation](ctx, c.cc, "UnarchiveConversation", in, opts)
}
func (c *MatchingServiceClient) ListConversations(ctx context.Context, in *ListConversationsRequest, opts ...grpc.CallOption) (*ListConversationsResponse, error) {
	return invoke[ListConversationsResponse](ctx, c.cc, "ListConversations", in, opts)
}
func (c *MatchingServiceClient) ListMessages(ctx context.Context, in *ListMessagesRequest, opts ...grpc.CallOption) (*ListMessagesResponse, error) {
	return invoke[ListMessagesResponse](ctx, c.cc, "ListMessages", in, opts)
}
func (c *MatchingServiceClient) CreateMatchSet(ctx context.Context, in *CreateMatchSetRequest, opts ...grpc.CallOption) (*MatchSet, error) {
	return invoke[MatchSet](ctx, c.cc, "CreateMatchSet", in, opts)
}
func (c *MatchingServiceClient) GetMatchSet(ctx context.Context, in *GetMatchSetRequest, opts ...grpc.CallOption) (*MatchSet, error) {
	return invoke[MatchSet](ctx, c.cc, "GetMatchSet", in, opts)
}
func (c *MatchingServiceClient) RecordViewTime(ctx context.Context, in *RecordViewTimeRequest, opts ...grpc.CallOption) (*MatchSet, error) {
	return invoke[MatchSet](ctx, c.cc, "RecordViewTime", in, opts)
}
func (c *MatchingServiceClient) ListLikedYou(ctx context.Context, in *ListLikedYouRequest, opts ...grpc.CallOption) (*ListLikedYouResponse, error) {
	return invoke[ListLikedYouResponse](ctx, c.cc, "ListLikedYou", in, opts)
}
func (c *MatchingServiceClient) CountLikedYou(ctx context.Context, in *UserRequest, opts ...grpc.CallOption) (*CountResponse, error) {
	return invoke[CountResponse](ctx, c.cc, "CountLikedYou", in, opts)
}
func (c *MatchingServiceClient) CountUnread(ctx context.Context, in *UserRequest, opts ...grpc.CallOption) (*CountResponse, error) {
	return invoke[CountResponse](ctx, c.cc, "CountUnread", in, opts)
}
func (c *MatchingServiceClient) BlockUser(ctx context.Context, in *BlockUserRequest, opts ...grpc.CallOption) (*emptypb.Empty, error) {
	return invoke[emptypb.Empty](ctx, c.cc, "BlockUser", in, opts)
}
func (c *MatchingServiceClient) UnblockUser(ctx context.Context, in *UnblockUserRequest, opts ...grpc.CallOption) (*emptypb.Empty, error) {
	return invoke[emptypb.Empty](ctx, c.cc, "UnblockUser", in, opts)
}
func (c *MatchingServiceClient) ReportMatch(ctx context.Context, in *ReportMatchRequest, opts ...grpc.CallOption) (*Conversation, error) {
	return invoke[Conversation](ctx, c.cc, "ReportMatch", in, opts)
}
func (c *MatchingServiceClient) ReconcileUser(ctx context.Context, in *UserRequest, opts ...grpc.CallOption) (*ReconcileUserResponse, error) {
	return invoke[ReconcileUserResponse](ctx, c.cc, "ReconcileUser", in, opts)
}
