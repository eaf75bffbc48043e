package server

import (
	"io"
	"net/http"

	"github.com/MarcoPoloResearchLab/soulmatch/internal/profiles"
	"github.com/MarcoPoloResearchLab/soulmatch/internal/storage"
	"github.com/MarcoPoloResearchLab/soulmatch/internal/users"
	"github.com/gin-gonic/gin"
)

const (
	opHandleSignUp      = "server.signup"
	opHandleSignIn      = "server.signin"
	opHandleProfile     = "server.profile"
	opHandleUploadPhoto = "server.upload_photo"

	maxPatchBytes       = 64 << 10
	multipartOverhead   = 1 << 20
	photoFormField      = "file"
	photoSlotFormField  = "slot"
	tokenTypeBearer     = "Bearer"
	matchOnlineOnlyFlag = "true"
)

type signInRequestPayload struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type signInResponsePayload struct {
	AccessToken string     `json:"access_token"`
	ExpiresIn   int64      `json:"expires_in"`
	TokenType   string     `json:"token_type"`
	User        users.User `json:"user"`
	Role        users.Role `json:"role,omitempty"`
}

type photoResponsePayload struct {
	Object  storage.Object   `json:"object"`
	Profile profiles.Profile `json:"profile"`
}

func (h *httpHandler) handleSignUp(c *gin.Context) {
	var request users.SignUpInput
	if err := c.ShouldBindJSON(&request); err != nil {
		h.writeBadRequest(c, opHandleSignUp, "invalid_payload", err)
		return
	}
	user, err := h.users.SignUp(c.Request.Context(), request)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"user": user})
}

func (h *httpHandler) handleSignIn(c *gin.Context) {
	var request signInRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		h.writeBadRequest(c, opHandleSignIn, "invalid_payload", err)
		return
	}
	session, err := h.users.SignIn(c.Request.Context(), request.Email, request.Password)
	if err != nil {
		h.writeError(c, err)
		return
	}
	role, err := h.users.RoleOf(c.Request.Context(), session.User.ID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, signInResponsePayload{
		AccessToken: session.Token.AccessToken,
		ExpiresIn:   session.Token.ExpiresIn,
		TokenType:   tokenTypeBearer,
		User:        session.User,
		Role:        role,
	})
}

func (h *httpHandler) handleSignOut(c *gin.Context) {
	if err := h.users.SignOut(c.Request.Context(), sessionClaims(c)); err != nil {
		h.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *httpHandler) handleGetProfile(c *gin.Context) {
	profile, err := h.profiles.Get(c.Request.Context(), c.GetString(userIDContextKey))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, profile)
}

func (h *httpHandler) handleUpdateProfile(c *gin.Context) {
	h.applyProfilePatch(c, c.GetString(userIDContextKey))
}

// applyProfilePatch decodes a partial profile document and applies it to profileID.
func (h *httpHandler) applyProfilePatch(c *gin.Context, profileID string) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxPatchBytes))
	if err != nil {
		h.writeBadRequest(c, opHandleProfile, "unreadable_body", err)
		return
	}
	patch, err := profiles.DecodePatch(body)
	if err != nil {
		h.writeError(c, err)
		return
	}
	profile, err := h.profiles.Update(c.Request.Context(), profileID, patch)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, profile)
}

func (h *httpHandler) handleUploadPhoto(c *gin.Context) {
	if h.bucket == nil {
		h.writeError(c, errBucketUnavailable)
		return
	}
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, storage.MaxObjectBytes+multipartOverhead)
	slot := c.PostForm(photoSlotFormField)
	switch slot {
	case profiles.SlotMain, profiles.SlotGalleryA, profiles.SlotGalleryB:
	default:
		h.writeBadRequest(c, opHandleUploadPhoto, "unknown_slot", nil)
		return
	}

	header, err := c.FormFile(photoFormField)
	if err != nil {
		h.writeBadRequest(c, opHandleUploadPhoto, "missing_file", err)
		return
	}
	file, err := header.Open()
	if err != nil {
		h.writeBadRequest(c, opHandleUploadPhoto, "unreadable_file", err)
		return
	}
	defer file.Close()

	userID := c.GetString(userIDContextKey)
	object, err := h.bucket.Upload(c.Request.Context(), userID, header.Filename, file)
	if err != nil {
		h.writeError(c, err)
		return
	}
	profile, err := h.profiles.AttachPhoto(c.Request.Context(), userID, slot, object.PublicURL)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, photoResponsePayload{Object: object, Profile: profile})
}

func (h *httpHandler) handleListCandidates(c *gin.Context) {
	candidates, err := h.profiles.ListCandidates(c.Request.Context(), c.GetString(userIDContextKey))
	if err != nil {
		h.writeError(c, err)
		return
	}
	filter := profiles.Filter{
		Query:      c.Query("q"),
		AgeRange:   c.Query("age"),
		Location:   c.Query("location"),
		Occupation: c.Query("occupation"),
		Interest:   c.Query("interest"),
		OnlineOnly: c.Query("online") == matchOnlineOnlyFlag,
	}
	c.JSON(http.StatusOK, gin.H{"profiles": filter.Apply(candidates)})
}
