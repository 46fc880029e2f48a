package adapter

import "context"

// PanelClient is the remote access-panel collaborator. The panel owns the
// actual VPN credentials; this service only needs the opaque access link to
// hand to the user after activation.
type PanelClient interface {
	AccessLink(ctx context.Context, userID int64) (string, error)
}
