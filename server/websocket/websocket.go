// Package websocket contains helpers and implementation for backend functions
// that stream live query campaign frames over websockets.
package websocket

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/igm/sockjs-go/v3/sockjs"
)

const (
	// selectCampaignType is the type string used by consumers to pick the
	// campaign they want to stream.
	selectCampaignType string = "select_campaign"

	// errType is the type string used for error messages.
	errType string = "error"
)

// JSONMessage is a wrapper struct for messages that will be sent across the wire
// as JSON.
type JSONMessage struct {
	// Type is a string indicating which message type the data contains
	Type string `json:"type"`
	// Data contains the arbitrarily schemaed JSON data. Type should
	// indicate how this should be deserialized.
	Data interface{} `json:"data"`
}

// Conn is a wrapper for a standard websocket connection with utility methods
// added for interacting with campaign specific message types.
type Conn struct {
	sockjs.Session
}

func (c *Conn) WriteJSON(msg JSONMessage) error {
	buf, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshalling JSON: %w", err)
	}
	if err := c.Send(string(buf)); err != nil {
		return fmt.Errorf("sending: %w", err)
	}
	return nil
}

// WriteJSONMessage writes the provided data as JSON (using the Message struct),
// returning any error condition from the connection.
func (c *Conn) WriteJSONMessage(typ string, data interface{}) error {
	return c.WriteJSON(JSONMessage{Type: typ, Data: data})
}

// WriteJSONError writes an error (Message struct with Type="error"), returning any
// error condition from the connection.
func (c *Conn) WriteJSONError(data interface{}) error {
	return c.WriteJSONMessage(errType, data)
}

// ReadJSONMessage reads an incoming Message from JSON. Note that the
// Message.Data field is guaranteed to be *json.RawMessage, and so unchecked
// type assertions may be performed as in:
//
//	msg, err := c.ReadJSONMessage()
//	if err == nil && msg.Type == "foo" {
//		var foo fooData
//		json.Unmarshal(*(msg.Data.(*json.RawMessage)), &foo)
//	}
func (c *Conn) ReadJSONMessage() (*JSONMessage, error) {
	data, err := c.Recv()
	if err != nil {
		return nil, fmt.Errorf("reading from websocket: %w", err)
	}
	return parseJSONMessage([]byte(data))
}

func parseJSONMessage(data []byte) (*JSONMessage, error) {
	msg := &JSONMessage{Data: &json.RawMessage{}}

	if err := json.Unmarshal(data, msg); err != nil {
		return nil, fmt.Errorf("parsing msg json: %w", err)
	}

	if msg.Type == "" {
		return nil, errors.New("missing message type")
	}

	return msg, nil
}

// selectCampaignData defines the data a consumer sends to pick the campaign
// to stream.
type selectCampaignData struct {
	CampaignID uint `json:"campaign_id"`
}

// ReadSelectCampaign reads from the websocket, returning the campaign ID
// embedded in a JSONMessage with type "select_campaign".
func (c *Conn) ReadSelectCampaign() (uint, error) {
	msg, err := c.ReadJSONMessage()
	if err != nil {
		return 0, fmt.Errorf("read select_campaign: %w", err)
	}
	if msg.Type != selectCampaignType {
		return 0, fmt.Errorf(`message type not "%s": "%s"`, selectCampaignType, msg.Type)
	}

	var sel selectCampaignData
	if err := json.Unmarshal(*(msg.Data.(*json.RawMessage)), &sel); err != nil {
		return 0, fmt.Errorf("unmarshal select_campaign data: %w", err)
	}
	if sel.CampaignID == 0 {
		return 0, errors.New("select_campaign: missing campaign_id")
	}

	return sel.CampaignID, nil
}
