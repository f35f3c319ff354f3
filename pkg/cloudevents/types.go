package cloudevents

import (
	"time"
)

// Source constants for event sources
const (
	SourceShopAPI      = "/shop-engine/api"
	SourceCheckout     = "/shop-engine/checkout"
	SpecVersion        = "1.0"
	ContentTypeJSON    = "application/json"
	ExtensionShopID    = "shopid"
	ExtensionUserID    = "userid"
	ExtensionWorkflow  = "workflowid"
	ExtensionCorrelate = "correlationid"
)

// ShopCloudEvent is a CloudEvents v1.0 envelope for shop engine events
type ShopCloudEvent struct {
	SpecVersion     string      `json:"specversion"`
	Type            string      `json:"type"`
	Source          string      `json:"source"`
	Subject         string      `json:"subject,omitempty"`
	ID              string      `json:"id"`
	Time            time.Time   `json:"time"`
	DataContentType string      `json:"datacontenttype"`
	Data            interface{} `json:"data"`

	// Extension attributes
	ShopID        string `json:"shopid,omitempty"`
	UserID        string `json:"userid,omitempty"`
	CorrelationID string `json:"correlationid,omitempty"`
	WorkflowID    string `json:"workflowid,omitempty"`
}

// Headers returns the extension attributes as transport headers
func (e *ShopCloudEvent) Headers() map[string]string {
	headers := map[string]string{
		"ce_specversion": e.SpecVersion,
		"ce_type":        e.Type,
		"ce_source":      e.Source,
		"ce_id":          e.ID,
	}
	if e.ShopID != "" {
		headers["ce_"+ExtensionShopID] = e.ShopID
	}
	if e.UserID != "" {
		headers["ce_"+ExtensionUserID] = e.UserID
	}
	if e.CorrelationID != "" {
		headers["ce_"+ExtensionCorrelate] = e.CorrelationID
	}
	if e.WorkflowID != "" {
		headers["ce_"+ExtensionWorkflow] = e.WorkflowID
	}
	return headers
}
