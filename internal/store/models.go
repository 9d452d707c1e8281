package store

// Role classifies a user account.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// DetectionSetting holds the per-class flags of one user. Detect gates
// whether the class participates in snapshotting at all, Notify gates
// outbound notifications for it.
type DetectionSetting struct {
	Detect bool `json:"detect"`
	Notify bool `json:"notify"`
}

// ChatBinding links an auth code to a chat target. ChatID stays empty
// until the linking handshake from the relay completes.
type ChatBinding struct {
	Username string `json:"username"`
	ChatID   string `json:"chat_id"`
}

// User is the durable per-tenant profile. Detection settings are keyed by
// the decimal class id so the on-disk JSON stays stable.
type User struct {
	Username          string                      `json:"-"`
	PasswordHash      string                      `json:"password"`
	Role              Role                        `json:"role"`
	Cameras           map[string]string           `json:"cameras"`
	DetectionSettings map[string]DetectionSetting `json:"detection_settings"`
	AuthCodes         map[string]ChatBinding      `json:"auth_codes"`
}

// ChatTarget is a bound notification destination for a user.
type ChatTarget struct {
	Code   string
	ChatID string
}

// ImageIndex maps camera name -> image path -> capture timestamp.
type ImageIndex map[string]map[string]string

// State is the durable subset of the store, exactly the shape of the
// backing JSON file.
type State struct {
	Users          map[string]User       `json:"users"`
	CapturedImages map[string]ImageIndex `json:"captured_images"`
}

func newUser(username, passwordHash string, role Role) User {
	return User{
		Username:          username,
		PasswordHash:      passwordHash,
		Role:              role,
		Cameras:           make(map[string]string),
		DetectionSettings: make(map[string]DetectionSetting),
		AuthCodes:         make(map[string]ChatBinding),
	}
}

func copyUser(u User) User {
	c := u
	c.Cameras = make(map[string]string, len(u.Cameras))
	for k, v := range u.Cameras {
		c.Cameras[k] = v
	}
	c.DetectionSettings = make(map[string]DetectionSetting, len(u.DetectionSettings))
	for k, v := range u.DetectionSettings {
		c.DetectionSettings[k] = v
	}
	c.AuthCodes = make(map[string]ChatBinding, len(u.AuthCodes))
	for k, v := range u.AuthCodes {
		c.AuthCodes[k] = v
	}
	return c
}

func copyIndex(idx ImageIndex) ImageIndex {
	c := make(ImageIndex, len(idx))
	for camera, images := range idx {
		m := make(map[string]string, len(images))
		for path, ts := range images {
			m[path] = ts
		}
		c[camera] = m
	}
	return c
}
