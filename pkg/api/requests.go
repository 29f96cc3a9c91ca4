package api

// LoginRequest is the POST /api/auth/login request body.
type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// DrivingModeRequest is the PUT /api/v1/admin/driving-mode request body.
type DrivingModeRequest struct {
	Mode string `json:"mode" binding:"required,oneof=auto manual"`
}

// PromptRequest is the PUT /api/v1/admin/prompts/:name request body.
type PromptRequest struct {
	Category string `json:"category" binding:"required,oneof=role background"`
	Content  string `json:"content" binding:"required"`
}
