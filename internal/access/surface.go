// Package access decides which navigation sections and API scopes a session
// may reach, including the platform-admin role and package simulation.
package access

type Surface string

const (
	SurfaceDashboard             Surface = "dashboard"
	SurfaceWorkOrders            Surface = "work_orders"
	SurfaceEquipment             Surface = "equipment"
	SurfacePreventiveMaintenance Surface = "preventive_maintenance"
	SurfaceParts                 Surface = "parts"
	SurfaceRCA                   Surface = "rca"
	SurfaceTroubleshooting       Surface = "troubleshooting"
	SurfaceTraining              Surface = "training"
	SurfaceUsers                 Surface = "users"
	SurfaceBilling               Surface = "billing"
	SurfaceSettings              Surface = "settings"
	SurfacePlatform              Surface = "platform"
)

// Surfaces lists every gateable surface in navigation order.
var Surfaces = []Surface{
	SurfaceDashboard,
	SurfaceWorkOrders,
	SurfaceEquipment,
	SurfacePreventiveMaintenance,
	SurfaceParts,
	SurfaceRCA,
	SurfaceTroubleshooting,
	SurfaceTraining,
	SurfaceUsers,
	SurfaceBilling,
	SurfaceSettings,
	SurfacePlatform,
}

func (s Surface) Valid() bool {
	for _, known := range Surfaces {
		if s == known {
			return true
		}
	}
	return false
}
