package handlers

import (
  "net/http"
  "github.com/gin-gonic/gin"
  "github.com/sqlmentor/sqlmentor-backend/internal/services"
)

type CertificateHandler struct {
  certificateService services.CertificateService
}

func NewCertificateHandler(certificateService services.CertificateService) *CertificateHandler {
  return &CertificateHandler{certificateService: certificateService}
}

func (ch *CertificateHandler) SessionCertificate(c *gin.Context) {
  userID, ok := CallerID(c)
  if !ok {
    return
  }
  png, err := ch.certificateService.RenderSessionCertificate(c.Request.Context(), userID, c.Param("id"))
  if err != nil {
    RespondServiceError(c, err)
    return
  }
  c.Data(http.StatusOK, "image/png", png)
}

func (ch *CertificateHandler) MasterCertificate(c *gin.Context) {
  userID, ok := CallerID(c)
  if !ok {
    return
  }
  png, err := ch.certificateService.RenderMasterCertificate(c.Request.Context(), userID)
  if err != nil {
    RespondServiceError(c, err)
    return
  }
  c.Data(http.StatusOK, "image/png", png)
}
