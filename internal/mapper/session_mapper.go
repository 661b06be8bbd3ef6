package mapper

import (
	"silo-be/internal/dto"
	"silo-be/pkg/markdown"
	"silo-be/pkg/orchestrator"
)

// ToStateResponse attaches the parsed answer document so clients never parse markdown.
func ToStateResponse(snap orchestrator.Snapshot) *dto.StateResponse {
	res := &dto.StateResponse{Snapshot: snap}
	if snap.Result != nil && snap.Result.Web != nil {
		res.Document = markdown.Parse(snap.Result.Web.Text)
	}
	return res
}
