package controllers

import "agendazap/services"

var (
	instanceService *services.InstanceService
	connectFlow     *services.ConnectFlow
	recoveryService *services.RecoveryService
	webhookService  *services.WebhookService
)

// Setup injects the service layer. Called once from main before the router
// starts serving.
func Setup(inst *services.InstanceService, flow *services.ConnectFlow, rec *services.RecoveryService, wh *services.WebhookService) {
	instanceService = inst
	connectFlow = flow
	recoveryService = rec
	webhookService = wh
}
