package httpapi

import (
	"context"
	"encoding/json"

	"github.com/sinkr-io/sinkr/internal/coordinator"
	"github.com/sinkr-io/sinkr/internal/wire"
)

// dispatch implements §4.4's route table against a parsed Envelope. validation is true
// when env.Data failed to parse against its route's request shape (or the route is
// unrecognized) — the HTTP transport turns that into a 400, the WebSocket transport
// just sends the resulting error Reply like any other failure.
func dispatch(ctx context.Context, c *coordinator.Coordinator, appID string, env wire.Envelope) (reply wire.Reply, validation bool) {
	switch env.Data.Route {

	case wire.RouteUserAuthenticate:
		var req wire.UserAuthenticateRequest
		if err := json.Unmarshal(env.Data.Request, &req); err != nil {
			return invalidRequestReply(env.ID, env.Data.Route), true
		}
		err := c.Authenticate(ctx, appID, req.PeerID, req.ID, req.UserInfo)
		return buildReply(env.ID, env.Data.Route, err, wire.UserAuthenticateResponse{Ok: wire.Success}), false

	case wire.RouteChannelCreate:
		var req wire.ChannelCreateRequest
		if err := json.Unmarshal(env.Data.Request, &req); err != nil {
			return invalidRequestReply(env.ID, env.Data.Route), true
		}
		channelID, err := c.CreateChannel(ctx, appID, req.Name, req.AuthMode, req.StoreMessages)
		return buildReply(env.ID, env.Data.Route, err, wire.ChannelCreateResponse{Ok: wire.Success, ChannelID: channelID}), false

	case wire.RouteChannelDelete:
		var req wire.ChannelDeleteRequest
		if err := json.Unmarshal(env.Data.Request, &req); err != nil {
			return invalidRequestReply(env.ID, env.Data.Route), true
		}
		err := c.DeleteChannel(ctx, appID, req.ChannelID)
		return buildReply(env.ID, env.Data.Route, err, wire.ChannelDeleteResponse{Ok: wire.Success}), false

	case wire.RouteChannelMessagesDelete:
		var req wire.ChannelMessagesDeleteRequest
		if err := json.Unmarshal(env.Data.Request, &req); err != nil {
			return invalidRequestReply(env.ID, env.Data.Route), true
		}
		err := c.DeleteMessages(ctx, appID, req.ChannelID, req.MessageIDs)
		return buildReply(env.ID, env.Data.Route, err, wire.ChannelMessagesDeleteResponse{Ok: wire.Success}), false

	case wire.RouteChannelSubscribersAdd:
		var req wire.ChannelSubscribersAddRequest
		if err := json.Unmarshal(env.Data.Request, &req); err != nil {
			return invalidRequestReply(env.ID, env.Data.Route), true
		}
		err := c.SubscribersAdd(ctx, appID, req.SubscriberID, req.ChannelID)
		return buildReply(env.ID, env.Data.Route, err, wire.ChannelSubscribersAddResponse{Ok: wire.Success}), false

	case wire.RouteChannelSubscribersRemove:
		var req wire.ChannelSubscribersRemoveRequest
		if err := json.Unmarshal(env.Data.Request, &req); err != nil {
			return invalidRequestReply(env.ID, env.Data.Route), true
		}
		err := c.SubscribersRemove(ctx, appID, req.SubscriberID, req.ChannelID)
		return buildReply(env.ID, env.Data.Route, err, wire.ChannelSubscribersRemoveResponse{Ok: wire.Success}), false

	case wire.RouteChannelMessagesSend:
		var req wire.ChannelMessagesSendRequest
		if err := json.Unmarshal(env.Data.Request, &req); err != nil {
			return invalidRequestReply(env.ID, env.Data.Route), true
		}
		err := c.ChannelMessagesSend(ctx, appID, req.ChannelID, env.ID, req.Event, req.Message)
		return buildReply(env.ID, env.Data.Route, err, wire.ChannelMessagesSendResponse{Ok: wire.Success}), false

	case wire.RouteUserMessagesSend:
		var req wire.UserMessagesSendRequest
		if err := json.Unmarshal(env.Data.Request, &req); err != nil {
			return invalidRequestReply(env.ID, env.Data.Route), true
		}
		err := c.UserMessagesSend(ctx, appID, req.RecipientID, req.Event, req.Message)
		return buildReply(env.ID, env.Data.Route, err, wire.UserMessagesSendResponse{Ok: wire.Success}), false

	case wire.RouteGlobalMessagesSend:
		var req wire.GlobalMessagesSendRequest
		if err := json.Unmarshal(env.Data.Request, &req); err != nil {
			return invalidRequestReply(env.ID, env.Data.Route), true
		}
		err := c.GlobalMessagesSend(ctx, appID, req.Event, req.Message)
		return buildReply(env.ID, env.Data.Route, err, wire.GlobalMessagesSendResponse{Ok: wire.Success}), false

	default:
		return invalidRequestReply(env.ID, env.Data.Route), true
	}
}

func invalidRequestReply(id string, route wire.Route) wire.Reply {
	reply, _ := wire.NewReply(id, route, wire.NewErrorResponse(wire.ErrInvalidRequest))
	return reply
}

// buildReply always returns a well-formed Reply: the domain error, if any, as
// {success:false, error:...}, otherwise successResp as-is. Store and other internal
// errors surface as "Unknown error" because wire.ErrorString collapses anything not in
// its taxonomy; the original error is not logged here.
func buildReply(id string, route wire.Route, err error, successResp any) wire.Reply {
	if err != nil {
		reply, marshalErr := wire.NewReply(id, route, wire.NewErrorResponse(err))
		if marshalErr != nil {
			reply, _ = wire.NewReply(id, route, wire.NewErrorResponse(wire.ErrUnknown))
		}
		return reply
	}
	reply, marshalErr := wire.NewReply(id, route, successResp)
	if marshalErr != nil {
		reply, _ = wire.NewReply(id, route, wire.NewErrorResponse(wire.ErrUnknown))
	}
	return reply
}
