// Package docs 参考服务器接口文档，由 swag init -g server.go -d internal/mockapi -o internal/mockapi/docs 生成
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "contact": {},
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/api/v1/instances/{instanceId}/complete": {
            "post": {
                "security": [{"BearerAuth": []}],
                "description": "结束卡片并入账派彩；卡片被挂起时返回 403",
                "produces": ["application/json"],
                "tags": ["Instances"],
                "summary": "结束卡片",
                "parameters": [
                    {"type": "string", "description": "卡片ID", "name": "instanceId", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/apiclient.Instance"}},
                    "403": {"description": "Forbidden", "schema": {"$ref": "#/definitions/apiclient.ErrorBody"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/apiclient.ErrorBody"}},
                    "409": {"description": "Conflict", "schema": {"$ref": "#/definitions/apiclient.ErrorBody"}}
                }
            }
        },
        "/api/v1/instances/{instanceId}/numbers/{numberId}/reveal": {
            "post": {
                "security": [{"BearerAuth": []}],
                "description": "刮开卡片上的一个号码",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["Instances"],
                "summary": "刮开单个号码",
                "parameters": [
                    {"type": "string", "description": "卡片ID", "name": "instanceId", "in": "path", "required": true},
                    {"type": "string", "description": "号码ID", "name": "numberId", "in": "path", "required": true},
                    {"description": "刮开请求", "name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/apiclient.RevealRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/apiclient.Instance"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/apiclient.ErrorBody"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/apiclient.ErrorBody"}},
                    "409": {"description": "Conflict", "schema": {"$ref": "#/definitions/apiclient.ErrorBody"}}
                }
            }
        },
        "/api/v1/instances/{instanceId}/reveal-all": {
            "post": {
                "security": [{"BearerAuth": []}],
                "description": "一次刮开卡片上的全部号码",
                "produces": ["application/json"],
                "tags": ["Instances"],
                "summary": "一键刮开",
                "parameters": [
                    {"type": "string", "description": "卡片ID", "name": "instanceId", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/apiclient.Instance"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/apiclient.ErrorBody"}},
                    "409": {"description": "Conflict", "schema": {"$ref": "#/definitions/apiclient.ErrorBody"}}
                }
            }
        },
        "/api/v1/sessions": {
            "get": {
                "security": [{"BearerAuth": []}],
                "description": "获取全部可购买场次",
                "produces": ["application/json"],
                "tags": ["Sessions"],
                "summary": "场次列表",
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "array", "items": {"$ref": "#/definitions/apiclient.Session"}}},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/apiclient.ErrorBody"}}
                }
            }
        },
        "/api/v1/users/{userId}/balance": {
            "get": {
                "security": [{"BearerAuth": []}],
                "description": "获取玩家余额，单位为分",
                "produces": ["application/json"],
                "tags": ["Users"],
                "summary": "玩家余额",
                "parameters": [
                    {"type": "string", "description": "玩家ID", "name": "userId", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/apiclient.Balance"}},
                    "403": {"description": "Forbidden", "schema": {"$ref": "#/definitions/apiclient.ErrorBody"}}
                }
            }
        },
        "/api/v1/users/{userId}/instances": {
            "get": {
                "security": [{"BearerAuth": []}],
                "description": "获取玩家未结束的卡片",
                "produces": ["application/json"],
                "tags": ["Users"],
                "summary": "卡片列表",
                "parameters": [
                    {"type": "string", "description": "玩家ID", "name": "userId", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "array", "items": {"$ref": "#/definitions/apiclient.Instance"}}},
                    "403": {"description": "Forbidden", "schema": {"$ref": "#/definitions/apiclient.ErrorBody"}}
                }
            }
        },
        "/api/v1/users/{userId}/purchase": {
            "post": {
                "security": [{"BearerAuth": []}],
                "description": "按场次购买卡片，余额不足返回 402",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["Users"],
                "summary": "购买卡片",
                "parameters": [
                    {"type": "string", "description": "玩家ID", "name": "userId", "in": "path", "required": true},
                    {"description": "购买请求", "name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/apiclient.PurchaseRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "array", "items": {"$ref": "#/definitions/apiclient.Instance"}}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/apiclient.ErrorBody"}},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/apiclient.ErrorBody"}},
                    "402": {"description": "Payment Required", "schema": {"$ref": "#/definitions/apiclient.ErrorBody"}}
                }
            }
        }
    },
    "definitions": {
        "apiclient.Balance": {
            "type": "object",
            "properties": {
                "amountCents": {"type": "integer"},
                "currency": {"type": "string"},
                "userId": {"type": "string"}
            }
        },
        "apiclient.Definition": {
            "type": "object",
            "properties": {
                "config": {"$ref": "#/definitions/apiclient.DefinitionConfig"},
                "topPrize": {"type": "integer"}
            }
        },
        "apiclient.DefinitionConfig": {
            "type": "object",
            "properties": {
                "optionalGames": {"type": "array", "items": {"type": "string"}}
            }
        },
        "apiclient.ErrorBody": {
            "type": "object",
            "properties": {
                "code": {"type": "integer"},
                "description": {"type": "string"},
                "instance": {"$ref": "#/definitions/apiclient.Instance"},
                "message": {"type": "string"},
                "title": {"type": "string"}
            }
        },
        "apiclient.GameplayState": {
            "type": "object",
            "properties": {
                "bonusNumbers": {"type": "array", "items": {"$ref": "#/definitions/card.NumberItem"}},
                "luckyNumbers": {"type": "array", "items": {"$ref": "#/definitions/card.NumberItem"}},
                "match3": {"type": "array", "items": {"$ref": "#/definitions/card.NumberItem"}},
                "multipliers": {"type": "array", "items": {"$ref": "#/definitions/card.NumberItem"}},
                "payoutCents": {"type": "integer"},
                "prizeLot": {"type": "array", "items": {"$ref": "#/definitions/card.NumberItem"}},
                "userNumbers": {"type": "array", "items": {"$ref": "#/definitions/card.NumberItem"}}
            }
        },
        "apiclient.Instance": {
            "type": "object",
            "properties": {
                "createdAt": {"type": "string"},
                "gameId": {"type": "string"},
                "gameplayState": {"$ref": "#/definitions/apiclient.GameplayState"},
                "instanceId": {"type": "string"},
                "sessionId": {"type": "string"},
                "state": {"type": "string", "enum": ["PaymentPending", "Initialized", "Completed", "Invalidated"]}
            }
        },
        "apiclient.PurchaseRequest": {
            "type": "object",
            "properties": {
                "chargeType": {"type": "string", "enum": ["CASH", "BONUS", "COUPON"]},
                "couponId": {"type": "string"},
                "definitionId": {"type": "string"},
                "pin": {"type": "string"},
                "quantity": {"type": "integer"}
            }
        },
        "apiclient.RevealRequest": {
            "type": "object",
            "properties": {
                "revealed": {"type": "boolean"}
            }
        },
        "apiclient.Session": {
            "type": "object",
            "properties": {
                "definition": {"$ref": "#/definitions/apiclient.Definition"},
                "definitionId": {"type": "string"},
                "gameId": {"type": "string"},
                "price": {"type": "number"},
                "sessionId": {"type": "string"}
            }
        },
        "card.NumberItem": {
            "type": "object",
            "properties": {
                "numberId": {"type": "string"},
                "numberValue": {"type": "string"},
                "prize": {"$ref": "#/definitions/card.Prize"},
                "revealed": {"type": "boolean"},
                "sortOrder": {"type": "integer"},
                "winner": {"type": "boolean"}
            }
        },
        "card.Prize": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "multiplier": {"type": "integer"},
                "tag": {"type": "string"},
                "value": {"type": "integer"}
            }
        }
    },
    "securityDefinitions": {
        "BearerAuth": {
            "type": "apiKey",
            "name": "Authorization",
            "in": "header"
        }
    }
}`

// SwaggerInfo 文档元信息
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/",
	Schemes:          []string{},
	Title:            "Instant Win Reference API",
	Description:      "刮刮乐会话接口的参考实现",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
