// Copyright 2026 The OpenTrusty Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package authz

// -----------------------------------------------------------------------------
// Permission Constants
// -----------------------------------------------------------------------------

const (
	// PermEnrollLearners allows bulk enrolling and canceling enrollments.
	PermEnrollLearners = "enterprise.can_enroll_learners"

	// PermAccessAdminDashboard allows reading and administering a customer.
	PermAccessAdminDashboard = "enterprise.can_access_admin_dashboard"

	// PermManageFulfillments allows operators to inspect subsidy fulfillments
	// across learners.
	PermManageFulfillments = "enterprise.can_manage_enterprise_fulfillments"

	// PermViewCatalog allows reading catalog content membership.
	PermViewCatalog = "enterprise.can_view_catalog"
)

// -----------------------------------------------------------------------------
// Role Name Constants
// These are the canonical names for roles stored in the database and
// carried in token role claims.
// -----------------------------------------------------------------------------

const (
	// RoleOperator is the platform operator role.
	// Permissions: * (wildcard - all permissions)
	RoleOperator = "enterprise_openedx_operator"

	// RoleAdmin is the enterprise administrator role.
	RoleAdmin = "enterprise_admin"

	// RoleLearner is granted to every linked learner.
	RoleLearner = "enterprise_learner"

	// RoleCatalogAdmin administers catalog content only.
	RoleCatalogAdmin = "enterprise_catalog_admin"

	// RoleFulfillmentOperator inspects fulfillments without full admin rights.
	RoleFulfillmentOperator = "enterprise_fulfillment_operator"
)

// -----------------------------------------------------------------------------
// Role Permission Mappings
// -----------------------------------------------------------------------------

// OperatorPermissions defines permissions for the operator role.
var OperatorPermissions = []string{
	"*",
}

// AdminPermissions defines permissions for the enterprise_admin role.
var AdminPermissions = []string{
	PermEnrollLearners,
	PermAccessAdminDashboard,
	PermViewCatalog,
}

// LearnerPermissions defines permissions for the enterprise_learner role.
var LearnerPermissions = []string{
	PermViewCatalog,
}

// CatalogAdminPermissions defines permissions for the catalog admin role.
var CatalogAdminPermissions = []string{
	PermViewCatalog,
}

// FulfillmentOperatorPermissions defines permissions for the fulfillment operator role.
var FulfillmentOperatorPermissions = []string{
	PermManageFulfillments,
	PermAccessAdminDashboard,
}

// DefaultRoles returns the built-in role table keyed by role name.
func DefaultRoles() map[string]*Role {
	return map[string]*Role{
		RoleOperator:            {Name: RoleOperator, Description: "Platform operator", Permissions: OperatorPermissions},
		RoleAdmin:               {Name: RoleAdmin, Description: "Enterprise administrator", Permissions: AdminPermissions},
		RoleLearner:             {Name: RoleLearner, Description: "Enterprise learner", Permissions: LearnerPermissions},
		RoleCatalogAdmin:        {Name: RoleCatalogAdmin, Description: "Catalog administrator", Permissions: CatalogAdminPermissions},
		RoleFulfillmentOperator: {Name: RoleFulfillmentOperator, Description: "Fulfillment operator", Permissions: FulfillmentOperatorPermissions},
	}
}
