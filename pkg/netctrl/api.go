package netctrl

import (
	"net/http"

	"netctrl-go/pkg/shaper"

	"github.com/labstack/echo/v4"
)

// API is a read-only HTTP view of the controller for dashboards and
// scripting. Mutation stays on the management socket.
type API struct {
	Api        *echo.Echo
	Controller *Controller
	addr       string
}

func NewAPI(c *Controller, addr string) *API {
	api := echo.New()
	api.HideBanner = true
	a := &API{
		Api:        api,
		Controller: c,
		addr:       addr,
	}
	a.Api.GET("/status", a.GetStatus)
	a.Api.GET("/rules", a.GetRules)
	a.Api.GET("/interfaces", a.GetInterfaces)
	return a
}

func (a *API) GetStatus(c echo.Context) error {
	return c.JSON(http.StatusOK, a.Controller.Status())
}

func (a *API) GetRules(c echo.Context) error {
	return c.JSON(http.StatusOK, a.Controller.Status().Restrictions)
}

func (a *API) GetInterfaces(c echo.Context) error {
	names, err := shaper.Interfaces()
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, names)
}

// Run blocks serving the API.
func (a *API) Run() error {
	return a.Api.Start(a.addr)
}
