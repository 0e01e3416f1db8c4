// Package endpoints holds the payload contracts of the RPC endpoints and a
// typed client for calling them.
package endpoints

// TokenValidation is the reply of the jwt_request endpoint. Decoded is nil
// whenever IsValid is false.
type TokenValidation struct {
	IsValid bool                   `json:"is_valid"`
	Decoded map[string]interface{} `json:"decoded"`
}

// User is one record of the users_request reply.
type User struct {
	ID           int     `json:"id"`
	Username     string  `json:"username"`
	Email        string  `json:"email"`
	ProfileImage *string `json:"profile_image"`
}

// ImageStatus is the outcome code carried in image endpoint replies.
type ImageStatus int

const (
	ImageStatusSuccess         ImageStatus = 1000
	ImageStatusJSONDecodeError ImageStatus = 1001
	ImageStatusInvalidType     ImageStatus = 1002
	ImageStatusOSError         ImageStatus = 1003
	ImageStatusCloudError      ImageStatus = 1004
)

func (s ImageStatus) String() string {
	switch s {
	case ImageStatusSuccess:
		return "success"
	case ImageStatusJSONDecodeError:
		return "json_decode_error"
	case ImageStatusInvalidType:
		return "img_invalid_type_error"
	case ImageStatusOSError:
		return "os_error"
	case ImageStatusCloudError:
		return "cloud_error"
	default:
		return "unknown"
	}
}

type ImageStoreRequest struct {
	ImgBase64 string `json:"img_base64"`
	ImgType   string `json:"img_type"`
	BlobName  string `json:"blob_name"`
}

type ImageStoreResponse struct {
	Status   ImageStatus `json:"status"`
	BlobName *string     `json:"blob_name"`
}

type ImageURLRequest struct {
	BlobName string `json:"blob_name"`
}

type ImageURLResponse struct {
	Status ImageStatus `json:"status"`
	ImgURL *string     `json:"img_url"`
}
