package tests

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"

	"falldetect/annotator/schema"

	"github.com/go-chi/chi/v5"
)

var (
	ErrUnauthorized  = errors.New("unauthorized")
	ErrForbidden     = errors.New("forbidden")
	ErrNotFound      = errors.New("not found")
	ErrConflict      = errors.New("conflict")
	ErrUnprocessable = errors.New("unprocessable")
)

type httpTestRequest struct {
	api http.Handler

	method   string
	endpoint string
	headers  map[string]string
	json     interface{}
	body     io.Reader
	login    *loginInfo
}

func newHttpTestRequest(api http.Handler, method, endpoint string) *httpTestRequest {
	return &httpTestRequest{
		api:      api,
		method:   method,
		endpoint: endpoint,
	}
}

func (r *httpTestRequest) Header(key, value string) *httpTestRequest {
	if r.headers == nil {
		r.headers = make(map[string]string)
	}
	r.headers[key] = value
	return r
}

func (r *httpTestRequest) Login(username, password string) *httpTestRequest {
	r.login = &loginInfo{Username: username, Password: password}
	return r
}

func (r *httpTestRequest) Auth(token string) *httpTestRequest {
	return r.Header("Authorization", fmt.Sprintf("Bearer %v", token))
}

func (r *httpTestRequest) Json(data interface{}) *httpTestRequest {
	r.json = data
	return r
}

// response body will be parsed into result, passing nil indicates that no result is returned.
func (r *httpTestRequest) Do(result interface{}) error {
	if r.json != nil {
		body := new(bytes.Buffer)
		err := json.NewEncoder(body).Encode(r.json)
		if err != nil {
			return fmt.Errorf("error encoding json body for endpoint %v: %w", r.endpoint, err)
		}
		r.body = body
	}

	req := httptest.NewRequest(r.method, r.endpoint, r.body)
	if r.headers != nil {
		for k, v := range r.headers {
			req.Header.Add(k, v)
		}
	}

	if r.login != nil {
		req.SetBasicAuth(r.login.Username, r.login.Password)
	}

	w := httptest.NewRecorder()

	r.api.ServeHTTP(w, req)

	res := w.Result()
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		switch res.StatusCode {
		case http.StatusUnauthorized:
			return ErrUnauthorized
		case http.StatusForbidden:
			return ErrForbidden
		case http.StatusNotFound:
			return ErrNotFound
		case http.StatusConflict:
			return ErrConflict
		case http.StatusUnprocessableEntity:
			return ErrUnprocessable
		}
		return fmt.Errorf("%v request to endpoint %v returned status %d, content '%v'", r.method, r.endpoint, res.StatusCode, w.Body.String())
	}

	if result != nil {
		err := json.NewDecoder(res.Body).Decode(result)
		if err != nil {
			return fmt.Errorf("error parsing %v response from endpoint %v: %w", r.method, r.endpoint, err)
		}
	}

	return nil
}

type client struct {
	api       chi.Router
	authToken string
	userId    int64
}

func (c *client) Get(endpoint string) *httpTestRequest {
	r := newHttpTestRequest(c.api, "GET", endpoint)
	if c.authToken != "" {
		return r.Auth(c.authToken)
	}
	return r
}

func (c *client) Post(endpoint string) *httpTestRequest {
	r := newHttpTestRequest(c.api, "POST", endpoint)
	if c.authToken != "" {
		return r.Auth(c.authToken)
	}
	return r
}

func (c *client) Delete(endpoint string) *httpTestRequest {
	r := newHttpTestRequest(c.api, "DELETE", endpoint)
	if c.authToken != "" {
		return r.Auth(c.authToken)
	}
	return r
}

type loginInfo struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (c *client) signup(username, email, password string) (loginInfo, error) {
	body := map[string]string{
		"username": username, "email": email, "password": password, "full_name": username,
	}

	err := c.Post("/user/signup").Json(body).Do(nil)
	if err != nil {
		return loginInfo{}, err
	}

	return loginInfo{Username: username, Password: password}, nil
}

type loginResponse struct {
	User        schema.UserPublic `json:"user"`
	AccessToken string            `json:"access_token"`
}

func (c *client) login(login loginInfo) error {
	var res loginResponse
	err := c.Get("/user/login").Login(login.Username, login.Password).Do(&res)
	if err != nil {
		return err
	}

	c.authToken = res.AccessToken
	c.userId = res.User.Id

	return nil
}

func (c *client) currentUser() (schema.UserPublic, error) {
	var user schema.UserPublic
	err := c.Get("/user/info").Do(&user)
	return user, err
}

func (c *client) changePassword(current, updated string) error {
	body := map[string]string{"current_password": current, "new_password": updated}
	return c.Post("/user/change-password").Json(body).Do(nil)
}

func (c *client) listUsers() ([]schema.UserPublic, error) {
	var users []schema.UserPublic
	err := c.Get("/user/list").Do(&users)
	return users, err
}

func (c *client) setUserActive(userId int64, active bool) error {
	action := "deactivate"
	if active {
		action = "reactivate"
	}
	return c.Post(fmt.Sprintf("/user/%v/%v", userId, action)).Do(nil)
}

func (c *client) createProject(name string) (schema.Project, error) {
	var project schema.Project
	err := c.Post("/project/create").Json(map[string]string{"name": name}).Do(&project)
	return project, err
}

func (c *client) getProject(projectId int64) (schema.Project, error) {
	var project schema.Project
	err := c.Get(fmt.Sprintf("/project/%v", projectId)).Do(&project)
	return project, err
}

func (c *client) updateProject(projectId int64, fields map[string]interface{}) (schema.Project, error) {
	var project schema.Project
	err := c.Post(fmt.Sprintf("/project/%v/update", projectId)).Json(fields).Do(&project)
	return project, err
}

func (c *client) listProjects(query string) ([]schema.Project, error) {
	var projects []schema.Project
	err := c.Get("/project/list" + query).Do(&projects)
	return projects, err
}

func (c *client) uploadVideos(paths []string, projectId *int64) ([]schema.Video, error) {
	body := map[string]interface{}{"file_paths": paths}
	if projectId != nil {
		body["project_id"] = *projectId
	}
	var videos []schema.Video
	err := c.Post("/video/upload").Json(body).Do(&videos)
	return videos, err
}

func (c *client) listVideos(query string) ([]schema.Video, error) {
	var videos []schema.Video
	err := c.Get("/video/list" + query).Do(&videos)
	return videos, err
}

func (c *client) assignVideo(videoId int64, userId *int64) (schema.Video, error) {
	var video schema.Video
	err := c.Post(fmt.Sprintf("/video/%v/assign", videoId)).Json(map[string]interface{}{"assigned_to": userId}).Do(&video)
	return video, err
}

func (c *client) completeVideo(videoId int64) (schema.Video, error) {
	var video schema.Video
	err := c.Post(fmt.Sprintf("/video/%v/complete", videoId)).Do(&video)
	return video, err
}

type annotationsResponse struct {
	Temporal []schema.TemporalAnnotation `json:"temporal"`
	Bboxes   []schema.BboxAnnotation     `json:"bboxes"`
}

func (c *client) getAnnotations(videoId int64) (annotationsResponse, error) {
	var res annotationsResponse
	err := c.Get(fmt.Sprintf("/annotation/video/%v", videoId)).Do(&res)
	return res, err
}

func (c *client) saveTemporal(body map[string]interface{}) (schema.TemporalAnnotation, error) {
	var annotation schema.TemporalAnnotation
	err := c.Post("/annotation/temporal").Json(body).Do(&annotation)
	return annotation, err
}

func (c *client) saveBbox(body map[string]interface{}) (schema.BboxAnnotation, error) {
	var annotation schema.BboxAnnotation
	err := c.Post("/annotation/bbox").Json(body).Do(&annotation)
	return annotation, err
}

func (c *client) deleteAnnotation(kind string, annotationId int64) error {
	return c.Delete(fmt.Sprintf("/annotation/%v/%v", kind, annotationId)).Do(nil)
}
