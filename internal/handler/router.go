package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/campusops/campus-records-api/internal/middleware"
	"github.com/campusops/campus-records-api/internal/models"
	"github.com/campusops/campus-records-api/internal/service"
)

// Services bundles everything the router needs.
type Services struct {
	Credentials *service.CredentialService
	Records     *service.RecordsService
	Billing     *service.BillingService
	Export      *service.ExportService
}

// RegisterRoutes mounts the API under the given prefix.
func RegisterRoutes(r *gin.Engine, prefix string, svcs Services) {
	authHandler := NewAuthHandler(svcs.Credentials)
	identityHandler := NewIdentityHandler(svcs.Credentials)
	courseHandler := NewCourseHandler(svcs.Records)
	enrollmentHandler := NewEnrollmentHandler(svcs.Records)
	studentHandler := NewStudentHandler(svcs.Records, svcs.Billing, svcs.Export)

	api := r.Group(prefix)

	auth := api.Group("/auth")
	{
		auth.POST("/register", authHandler.Register)
		auth.POST("/login", authHandler.Login)
		auth.POST("/refresh", authHandler.Refresh)

		protected := auth.Group("")
		protected.Use(middleware.JWT(svcs.Credentials))
		protected.POST("/logout", authHandler.Logout)
		protected.POST("/change-password", authHandler.ChangePassword)
	}

	identities := api.Group("/identities")
	identities.Use(middleware.JWT(svcs.Credentials), middleware.RequireRoles(models.RoleAdmin))
	{
		identities.PUT("/:id/role", identityHandler.SetRole)
		identities.DELETE("/:id", identityHandler.Deactivate)
	}

	courses := api.Group("/courses")
	courses.Use(middleware.JWT(svcs.Credentials))
	{
		courses.GET("", courseHandler.List)
		courses.POST("", middleware.RequireRoles(models.RoleInstructor, models.RoleAdmin), courseHandler.Create)
		courses.DELETE("/:code", middleware.RequireRoles(models.RoleInstructor, models.RoleAdmin), courseHandler.Delete)
	}

	enrollments := api.Group("/enrollments")
	enrollments.Use(middleware.JWT(svcs.Credentials))
	{
		enrollments.POST("", middleware.RBAC("STUDENT", "ADMIN"), enrollmentHandler.Enroll)
		enrollments.DELETE("", middleware.RBAC("STUDENT", "ADMIN"), enrollmentHandler.Drop)
		enrollments.PUT("/:id/grade", middleware.RequireRoles(models.RoleInstructor, models.RoleAdmin), enrollmentHandler.SetGrade)
	}

	students := api.Group("/students/:studentID")
	students.Use(middleware.JWT(svcs.Credentials))
	{
		students.GET("/transcript", middleware.RBAC("SELF", "INSTRUCTOR", "ADMIN"), studentHandler.Transcript)
		students.GET("/transcript/export", middleware.RBAC("SELF", "INSTRUCTOR", "ADMIN"), studentHandler.ExportTranscript)
		students.GET("/balance", middleware.RBAC("SELF", "ADMIN"), studentHandler.Balance)
		students.GET("/payments", middleware.RBAC("SELF", "ADMIN"), studentHandler.Payments)
		students.POST("/payments", middleware.RBAC("SELF", "ADMIN"), studentHandler.RecordPayment)
	}
}
